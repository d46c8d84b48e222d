// Package store keeps a catalog of saved snapshots in a bbolt database.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bSnapshots = []byte("snapshots")

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store: closed")

// Snapshot describes one exported snapshot file.
type Snapshot struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	When        time.Time `json:"when"`
	Session     string    `json:"session"`
	Trigger     string    `json:"trigger"`
	Occurrences int       `json:"occurrences"`
	Distinct    int       `json:"distinct"`
	Bytes       int       `json:"bytes"`
}

type Store struct {
	mu sync.RWMutex
	db *bolt.DB
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bSnapshots)
		return e
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put records snap. An empty ID is filled with a random UUID and a zero
// When with the current time.
func (s *Store) Put(snap Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.When.IsZero() {
		snap.When = time.Now()
	}
	j, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bSnapshots).Put(key(snap), j)
	})
}

// List returns up to limit snapshots, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	out := []Snapshot{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bSnapshots).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var snap Snapshot
			if json.Unmarshal(v, &snap) != nil {
				continue
			}
			out = append(out, snap)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// key orders records by time: big-endian nanoseconds followed by the ID.
func key(snap Snapshot) []byte {
	k := make([]byte, 8, 8+len(snap.ID))
	binary.BigEndian.PutUint64(k, uint64(snap.When.UnixNano()))
	return append(k, snap.ID...)
}
