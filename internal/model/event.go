package model

import "time"

// RawEvent is one captured log call, queued until the next drain.
type RawEvent struct {
	Message    string
	StackTrace string
	Severity   Severity
}

// Timestamp records when an event was ingested. Elapsed and Tick are the
// last values published by the tick goroutine, so events drained in the
// same tick share them.
type Timestamp struct {
	WallClock time.Time
	Elapsed   float64 // seconds since the recorder started
	Tick      int64
}

// EntryKey is the structural identity of a collapsed entry.
type EntryKey struct {
	Message    string
	StackTrace string
	Severity   Severity
}

// CollapsedEntry is the canonical record for a distinct
// (message, stack trace, severity) triple.
type CollapsedEntry struct {
	Message    string
	StackTrace string
	Severity   Severity
	Count      int // occurrences collapsed into this entry
}

// Key returns the entry's dedup identity.
func (e *CollapsedEntry) Key() EntryKey {
	return EntryKey{Message: e.Message, StackTrace: e.StackTrace, Severity: e.Severity}
}

// Reset clears the entry for reuse.
func (e *CollapsedEntry) Reset() {
	*e = CollapsedEntry{}
}
