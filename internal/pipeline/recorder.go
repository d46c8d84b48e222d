// Package pipeline turns captured events into the collapsed log: producers
// push into a locked ring buffer, the tick goroutine drains it into the
// deduplicator and hands new lines to the durable writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crimson-sun/logbook/internal/buffer"
	"github.com/crimson-sun/logbook/internal/engine/dedup"
	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/metrics"
	"github.com/crimson-sun/logbook/internal/model"
	"github.com/crimson-sun/logbook/internal/output"
	"github.com/crimson-sun/logbook/internal/store"
)

const initialQueue = 256

// LineWriter receives formatted lines for durable storage.
type LineWriter interface {
	Enqueue(ctx context.Context, lines ...string) error
	Close() error
}

// Catalog records saved snapshots.
type Catalog interface {
	Put(store.Snapshot) error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFilter sets which severities are captured. Default: all.
func WithFilter(f model.Filter) Option {
	return func(r *Recorder) { r.filter = f }
}

// WithTimestamps enables capture timestamps. full selects the long
// "HH:MM:SS 1.25s at #42" form in formatted output.
func WithTimestamps(full bool) Option {
	return func(r *Recorder) {
		r.format.Timestamps = true
		r.format.FullTimestamps = full
	}
}

// WithWriter enables incremental persistence to w.
func WithWriter(w LineWriter) Option {
	return func(r *Recorder) { r.writer = w }
}

// WithCatalog records every saved snapshot in c.
func WithCatalog(c Catalog) Option {
	return func(r *Recorder) { r.catalog = c }
}

// WithLogger sets the recorder's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Stats is a point-in-time summary of a Recorder.
type Stats struct {
	Session     string `json:"session"`
	Ticks       int64  `json:"ticks"`
	Queued      int    `json:"queued"`
	Occurrences int    `json:"occurrences"`
	Distinct    int    `json:"distinct"`
	Written     int    `json:"written"`
	Persisting  bool   `json:"persisting"`
	Closed      bool   `json:"closed"`
}

// Recorder captures events from any goroutine and collapses them on tick.
//
// Capture may be called concurrently. Everything else (Tick, Drain, the
// exports, persistence toggles and Close) must run on a single goroutine;
// Driver provides one.
type Recorder struct {
	filter  model.Filter
	format  output.Format
	writer  LineWriter
	catalog Catalog
	log     *logging.Logger
	now     func() time.Time
	start   time.Time
	session uuid.UUID

	captured [model.Exception + 1]prometheus.Counter
	filtered [model.Exception + 1]prometheus.Counter

	mu     sync.Mutex // guards events and times
	events *buffer.Ring[model.RawEvent]
	times  *buffer.Ring[model.Timestamp]

	closing atomic.Bool
	ticks   atomic.Int64
	elapsed atomic.Uint64 // float64 bits, seconds since start at the last tick

	// Owned by the tick goroutine.
	dedup   *dedup.Deduplicator
	written int  // occurrences already handed to the writer
	fresh   bool // drained data not yet persisted
}

// New creates a Recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		filter:  model.FilterAll,
		now:     time.Now,
		session: uuid.New(),
		events:  buffer.NewRing[model.RawEvent](initialQueue),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.OrNop(r.log).With("recorder")
	r.start = r.now()
	if r.format.Timestamps {
		r.times = buffer.NewRing[model.Timestamp](initialQueue)
	}
	r.dedup = dedup.New(dedup.Config{Timestamps: r.format.Timestamps})
	for s := model.Info; s <= model.Exception; s++ {
		r.captured[s] = metrics.EventsCaptured.WithLabelValues(s.String())
		r.filtered[s] = metrics.EventsFiltered.WithLabelValues(s.String())
	}
	return r
}

// Session returns the recorder's random session ID.
func (r *Recorder) Session() string { return r.session.String() }

// Capture queues one event for the next drain. It returns
// model.ErrUnsupportedSeverity for out-of-range severities and does nothing
// once the recorder is closing or when the filter rejects the severity.
func (r *Recorder) Capture(message, stackTrace string, sev model.Severity) error {
	if r.closing.Load() {
		return nil
	}
	sev, err := sev.Normalize()
	if err != nil {
		return fmt.Errorf("recorder: capture: %w", err)
	}
	if !r.filter.Allows(sev) {
		r.filtered[sev].Inc()
		return nil
	}

	ev := model.RawEvent{Message: message, StackTrace: stackTrace, Severity: sev}
	var ts model.Timestamp
	if r.times != nil {
		ts = model.Timestamp{
			WallClock: r.now(),
			Elapsed:   math.Float64frombits(r.elapsed.Load()),
			Tick:      r.ticks.Load(),
		}
	}

	r.mu.Lock()
	r.events.Add(ev)
	if r.times != nil {
		r.times.Add(ts)
	}
	r.mu.Unlock()

	r.captured[sev].Inc()
	return nil
}

// Tick publishes the tick counter and elapsed time, drains the queue and,
// when persistence is enabled, writes every occurrence not yet written.
// A write error is returned; those lines are not retried.
func (r *Recorder) Tick(ctx context.Context) error {
	if r.closing.Load() {
		return nil
	}
	r.ticks.Add(1)
	r.elapsed.Store(math.Float64bits(r.now().Sub(r.start).Seconds()))
	r.Drain()
	return r.persist(ctx)
}

// Drain moves the events queued when it starts into the deduplicator, in
// arrival order, and returns how many it moved. Events captured while it
// runs wait for the next drain.
func (r *Recorder) Drain() int {
	began := time.Now()
	r.mu.Lock()
	k := r.events.Len()
	r.mu.Unlock()
	metrics.QueueDepth.Set(float64(k))

	for i := 0; i < k; i++ {
		var ts model.Timestamp
		r.mu.Lock()
		ev, _ := r.events.RemoveFirst()
		if r.times != nil {
			ts, _ = r.times.RemoveFirst()
		}
		r.mu.Unlock()
		r.dedup.Add(ev, ts)
	}

	if k > 0 {
		r.fresh = true
		metrics.Occurrences.Add(float64(k))
		metrics.DistinctEntries.Set(float64(r.dedup.Distinct()))
	}
	metrics.DrainLatency.Observe(time.Since(began).Seconds())
	return k
}

func (r *Recorder) persist(ctx context.Context) error {
	if r.writer == nil || !r.fresh {
		return nil
	}
	n := r.dedup.Occurrences()
	if r.written >= n {
		r.fresh = false
		return nil
	}
	lines := make([]string, 0, n-r.written)
	for i := r.written; i < n; i++ {
		ts, _ := r.dedup.OccurrenceTime(i)
		lines = append(lines, r.format.Line(r.dedup.Entry(r.dedup.Occurrence(i)), ts))
	}
	r.written = n
	r.fresh = false
	if err := r.writer.Enqueue(ctx, lines...); err != nil {
		return fmt.Errorf("recorder: persist %d lines: %w", len(lines), err)
	}
	return nil
}

// SetWriter switches incremental persistence to w, or off when w is nil.
// The previous writer is returned unclosed. Turning persistence on rewinds
// the cursor so the next tick writes the whole history once.
func (r *Recorder) SetWriter(w LineWriter) LineWriter {
	prev := r.writer
	r.writer = w
	if w != nil {
		r.written = 0
		r.fresh = r.dedup.Occurrences() > 0
	}
	return prev
}

// Persisting reports whether incremental persistence is on.
func (r *Recorder) Persisting() bool { return r.writer != nil }

// ExportAll drains the queue, then renders every occurrence in arrival
// order, one block per occurrence separated by newlines.
func (r *Recorder) ExportAll() string {
	r.Drain()
	n := r.dedup.Occurrences()
	size := 0
	for i := 0; i < n; i++ {
		size += output.EstimateLen(r.dedup.Entry(r.dedup.Occurrence(i)))
	}

	var sb strings.Builder
	sb.Grow(size)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte('\n')
		}
		ts, _ := r.dedup.OccurrenceTime(i)
		r.format.AppendLine(&sb, r.dedup.Entry(r.dedup.Occurrence(i)), ts)
	}
	return sb.String()
}

// ExportCollapsed drains the queue, then renders each distinct entry once in
// first-seen order with its latest timestamp. Entries seen more than once
// end with " (xN)".
func (r *Recorder) ExportCollapsed() string {
	r.Drain()
	n := r.dedup.Distinct()
	size := 0
	for i := 0; i < n; i++ {
		size += output.EstimateLen(r.dedup.Entry(i))
	}

	var sb strings.Builder
	sb.Grow(size)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte('\n')
		}
		e := r.dedup.Entry(i)
		ts, _ := r.dedup.EntryTime(i)
		r.format.AppendLine(&sb, e, ts)
		if e.Count > 1 {
			sb.WriteString(" (x")
			sb.WriteString(strconv.Itoa(e.Count))
			sb.WriteByte(')')
		}
	}
	return sb.String()
}

// SaveSnapshot writes ExportAll to a new file in dir and returns its path.
func (r *Recorder) SaveSnapshot(dir string) (string, error) {
	return r.Snapshot(dir, "manual")
}

// Snapshot is SaveSnapshot with the trigger recorded in metrics and the
// catalog ("manual", "api", "schedule", ...).
func (r *Recorder) Snapshot(dir, trigger string) (string, error) {
	text := r.ExportAll()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("recorder: snapshot dir: %w", err)
	}
	when := r.now()
	path, err := r.createSnapshot(dir, when, []byte(text))
	if err != nil {
		return "", err
	}
	metrics.Snapshots.WithLabelValues(trigger).Inc()
	r.log.Info().Str("path", path).Str("trigger", trigger).
		Int("occurrences", r.dedup.Occurrences()).Msg("snapshot saved")

	if r.catalog != nil {
		err := r.catalog.Put(store.Snapshot{
			Path:        path,
			When:        when,
			Session:     r.session.String(),
			Trigger:     trigger,
			Occurrences: r.dedup.Occurrences(),
			Distinct:    r.dedup.Distinct(),
			Bytes:       len(text),
		})
		if err != nil {
			return path, fmt.Errorf("recorder: catalog snapshot: %w", err)
		}
	}
	return path, nil
}

// createSnapshot writes data to a fresh file named after when and the
// session. A name already taken gets a numeric suffix.
func (r *Recorder) createSnapshot(dir string, when time.Time, data []byte) (string, error) {
	base := fmt.Sprintf("logbook-snapshot-%s-%s", when.Format("20060102-150405"), r.session.String()[:8])
	for i := 1; ; i++ {
		name := base + ".log"
		if i > 1 {
			name = fmt.Sprintf("%s-%d.log", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("recorder: create snapshot: %w", err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return "", fmt.Errorf("recorder: write snapshot: %w", err)
		}
		return path, nil
	}
}

// Entries returns a copy of the collapsed entries in first-seen order.
func (r *Recorder) Entries() []model.CollapsedEntry {
	out := make([]model.CollapsedEntry, r.dedup.Distinct())
	for i := range out {
		out[i] = *r.dedup.Entry(i)
	}
	return out
}

// Occurrences returns the entry index of every received event in order.
func (r *Recorder) Occurrences() []int {
	out := make([]int, r.dedup.Occurrences())
	for i := range out {
		out[i] = r.dedup.Occurrence(i)
	}
	return out
}

// OccurrenceTimestamps returns one timestamp per occurrence, or nil when
// timestamps are off.
func (r *Recorder) OccurrenceTimestamps() []model.Timestamp {
	if !r.dedup.Timestamps() {
		return nil
	}
	out := make([]model.Timestamp, r.dedup.Occurrences())
	for i := range out {
		out[i], _ = r.dedup.OccurrenceTime(i)
	}
	return out
}

// EntryTimestamps returns the latest sighting of each entry, or nil when
// timestamps are off.
func (r *Recorder) EntryTimestamps() []model.Timestamp {
	if !r.dedup.Timestamps() {
		return nil
	}
	out := make([]model.Timestamp, r.dedup.Distinct())
	for i := range out {
		out[i], _ = r.dedup.EntryTime(i)
	}
	return out
}

// Stats summarizes the recorder.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	queued := r.events.Len()
	r.mu.Unlock()
	return Stats{
		Session:     r.session.String(),
		Ticks:       r.ticks.Load(),
		Queued:      queued,
		Occurrences: r.dedup.Occurrences(),
		Distinct:    r.dedup.Distinct(),
		Written:     r.written,
		Persisting:  r.writer != nil,
		Closed:      r.closing.Load(),
	}
}

// Close stops capture and ticking, then closes the writer, which finishes
// any append in flight. Calls after the first are no-ops.
func (r *Recorder) Close() error {
	if !r.closing.CompareAndSwap(false, true) {
		return nil
	}
	if r.writer == nil {
		return nil
	}
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("recorder: close writer: %w", err)
	}
	return nil
}
