package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/metrics"
)

const (
	defaultBufSize = 64 * 1024 // 64KB
	defaultBackups = 10
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBackups sets how many rotated files (path.1 .. path.N) are kept.
func WithBackups(n int) Option {
	return func(o *Output) {
		if n > 0 {
			o.backups = n
		}
	}
}

// WithSync makes every Append fsync the file after flushing the buffer.
func WithSync(on bool) Option {
	return func(o *Output) { o.sync = on }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// WithLogger sets the logger used to report rotations.
func WithLogger(l *logging.Logger) Option {
	return func(o *Output) { o.log = l }
}

// Output appends text blobs to a file. A blob is never split across a
// rotation boundary, and every Append reaches the OS before it returns.
type Output struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	path    string
	size    int64
	maxSize int64 // 0 = no rotation
	backups int
	sync    bool
	bufSize int
	log     *logging.Logger
}

// New opens (or creates) path for appending. Missing parent directories are
// created.
func New(path string, opts ...Option) (*Output, error) {
	o := &Output{
		path:    path,
		backups: defaultBackups,
		bufSize: defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logging.OrNop(o.log).With("file")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file output: mkdir: %w", err)
	}
	if err := o.open(); err != nil {
		return nil, err
	}
	return o, nil
}

// Path returns the file being written.
func (o *Output) Path() string { return o.path }

// Append writes blob to the end of the file and flushes it.
func (o *Output) Append(_ context.Context, blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.f == nil {
		return fmt.Errorf("file output: %s: %w", o.path, fs.ErrClosed)
	}
	if o.maxSize > 0 && o.size > 0 && o.size+int64(len(blob)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file output: rotate: %w", err)
		}
	}

	n, err := o.w.Write(blob)
	o.size += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("file output: flush: %w", err)
	}
	if o.sync {
		if err := o.f.Sync(); err != nil {
			return fmt.Errorf("file output: sync: %w", err)
		}
	}
	return nil
}

// Close flushes the buffer and closes the file. Further calls are no-ops.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return nil
	}
	err := o.w.Flush()
	err = errors.Join(err, o.f.Close())
	o.f, o.w = nil, nil
	if err != nil {
		return fmt.Errorf("file output: close: %w", err)
	}
	return nil
}

func (o *Output) open() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat: %w", err)
	}
	o.f = f
	o.w = bufio.NewWriterSize(f, o.bufSize)
	o.size = info.Size()
	return nil
}

// rotate closes the current file, shifts path.N-1 -> path.N down to
// path -> path.1, and opens a fresh file. The oldest backup is overwritten.
func (o *Output) rotate() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}
	o.f, o.w = nil, nil

	var errs []error
	for i := o.backups - 1; i >= 1; i-- {
		err := os.Rename(backupName(o.path, i), backupName(o.path, i+1))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.Rename(o.path, backupName(o.path, 1)); err != nil {
		errs = append(errs, err)
	}

	metrics.Rotations.Inc()
	o.log.Info().Str("path", o.path).Int64("size", o.size).Msg("rotated")

	// A fresh file is opened even when a rename failed so appends continue.
	return errors.Join(append(errs, o.open())...)
}

func backupName(path string, i int) string {
	return fmt.Sprintf("%s.%d", path, i)
}
