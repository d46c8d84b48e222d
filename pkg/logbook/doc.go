// Package logbook records log events from any number of goroutines,
// collapses repeated events into one entry while keeping every
// occurrence in arrival order, and appends the result to a file without
// blocking the callers.
//
// Quick start:
//
//	lb, err := logbook.New(logbook.WithPersistPath("logs/app.log"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lb.Close()
//
//	lb.Capture("connection refused", "at db.Dial", logbook.Error)
//
// Capture is safe for concurrent use. Events are collapsed on the next
// tick (every 100ms by default); Export and Snapshot drain pending events
// first.
package logbook
