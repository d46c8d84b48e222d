package dedup

import (
	"github.com/crimson-sun/logbook/internal/buffer"
	"github.com/crimson-sun/logbook/internal/model"
)

// Config controls deduplication behavior.
type Config struct {
	Timestamps bool // keep per-entry and per-occurrence timestamps
}

// Deduplicator collapses structurally identical events into one stored
// entry while keeping every occurrence's position in arrival order.
//
// Entries are indexed by first-seen order and never removed. The occurrence
// index holds one entry index per received event, duplicates included.
// Not safe for concurrent use: it belongs to the tick goroutine.
type Deduplicator struct {
	cfg Config

	entries *buffer.List[*model.CollapsedEntry]
	index   map[model.EntryKey]int
	pool    []*model.CollapsedEntry

	occurrences *buffer.List[int]

	entryTimes      *buffer.List[model.Timestamp] // latest sighting per entry
	occurrenceTimes *buffer.List[model.Timestamp]
}

// New creates a Deduplicator with the given config.
func New(cfg Config) *Deduplicator {
	d := &Deduplicator{
		cfg:         cfg,
		entries:     buffer.NewList[*model.CollapsedEntry](0),
		index:       make(map[model.EntryKey]int),
		occurrences: buffer.NewList[int](0),
	}
	if cfg.Timestamps {
		d.entryTimes = buffer.NewList[model.Timestamp](0)
		d.occurrenceTimes = buffer.NewList[model.Timestamp](0)
	}
	return d
}

// Add records one received event and returns the collapsed-storage index it
// resolved to. isNew is true on the first sighting of the triple.
// ts is ignored unless timestamps are enabled.
func (d *Deduplicator) Add(ev model.RawEvent, ts model.Timestamp) (index int, isNew bool) {
	e := d.acquire()
	e.Message = ev.Message
	e.StackTrace = ev.StackTrace
	e.Severity = ev.Severity

	index, found := d.index[e.Key()]
	if found {
		d.release(e)
		d.entries.At(index).Count++
		if d.cfg.Timestamps {
			d.entryTimes.Set(index, ts)
		}
	} else {
		index = d.entries.Len()
		e.Count = 1
		d.entries.Append(e)
		d.index[e.Key()] = index
		if d.cfg.Timestamps {
			d.entryTimes.Append(ts)
		}
	}

	d.occurrences.Append(index)
	if d.cfg.Timestamps {
		d.occurrenceTimes.Append(ts)
	}
	return index, !found
}

// Timestamps reports whether timestamps are being kept.
func (d *Deduplicator) Timestamps() bool { return d.cfg.Timestamps }

// Distinct returns the number of collapsed entries.
func (d *Deduplicator) Distinct() int { return d.entries.Len() }

// Entry returns collapsed entry i. Callers must not modify it.
func (d *Deduplicator) Entry(i int) *model.CollapsedEntry { return d.entries.At(i) }

// Lookup returns the index of the entry matching key.
func (d *Deduplicator) Lookup(key model.EntryKey) (int, bool) {
	i, ok := d.index[key]
	return i, ok
}

// EntryTime returns the latest sighting of entry i.
func (d *Deduplicator) EntryTime(i int) (model.Timestamp, bool) {
	if !d.cfg.Timestamps {
		return model.Timestamp{}, false
	}
	return d.entryTimes.At(i), true
}

// Occurrences returns the number of events received so far.
func (d *Deduplicator) Occurrences() int { return d.occurrences.Len() }

// Occurrence returns the entry index of the i-th received event.
func (d *Deduplicator) Occurrence(i int) int { return d.occurrences.At(i) }

// OccurrenceTime returns the ingestion time of the i-th received event.
func (d *Deduplicator) OccurrenceTime(i int) (model.Timestamp, bool) {
	if !d.cfg.Timestamps {
		return model.Timestamp{}, false
	}
	return d.occurrenceTimes.At(i), true
}

// Pooled returns the number of idle entry objects waiting for reuse.
func (d *Deduplicator) Pooled() int { return len(d.pool) }

func (d *Deduplicator) acquire() *model.CollapsedEntry {
	if n := len(d.pool); n > 0 {
		e := d.pool[n-1]
		d.pool = d.pool[:n-1]
		return e
	}
	return &model.CollapsedEntry{}
}

func (d *Deduplicator) release(e *model.CollapsedEntry) {
	e.Reset()
	d.pool = append(d.pool, e)
}
