package sources

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crimson-sun/logbook/internal/logging"
)

// idleFlush is how long a captured line waits for continuation lines
// before it is handed to the recorder on its own.
const idleFlush = 200 * time.Millisecond

// FileTail follows a file like tail -f. It watches the file's directory so
// it notices truncation, and rotation by rename followed by create.
type FileTail struct {
	path      string
	fromStart bool
	idle      time.Duration
	log       *logging.Logger

	f       *os.File
	r       *bufio.Reader
	offset  int64
	partial strings.Builder
	asm     *assembler
}

// NewFileTail follows path. With fromStart the existing content is
// captured first; otherwise only lines appended after Run starts.
func NewFileTail(path string, fromStart bool, log *logging.Logger) *FileTail {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &FileTail{path: abs, fromStart: fromStart, idle: idleFlush, log: logging.OrNop(log).With("tail")}
}

func (t *FileTail) Name() string { return "tail:" + t.path }

// Run follows the file until ctx is done.
func (t *FileTail) Run(ctx context.Context, c Capturer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tail: watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("tail: watch %s: %w", filepath.Dir(t.path), err)
	}

	t.asm = &assembler{c: c}
	if err := t.open(!t.fromStart); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	defer t.close()
	if err := t.read(); err != nil {
		return err
	}

	idle := time.NewTimer(t.idle)
	defer idle.Stop()
	t.arm(idle)

	base := filepath.Base(t.path)
	for {
		select {
		case <-ctx.Done():
			t.asm.flush()
			return nil
		case <-idle.C:
			if err := t.asm.flush(); err != nil {
				return fmt.Errorf("tail: capture: %w", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			t.log.Warn().Err(err).Msg("watcher error")
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if err := t.handle(ev); err != nil {
				return err
			}
			t.arm(idle)
		}
	}
}

// arm restarts the idle timer while an event is still waiting for its
// stack trace, and stops it otherwise.
func (t *FileTail) arm(idle *time.Timer) {
	if !idle.Stop() {
		select {
		case <-idle.C:
		default:
		}
	}
	if t.asm.pending {
		idle.Reset(t.idle)
	}
}

func (t *FileTail) handle(ev fsnotify.Event) error {
	switch {
	case ev.Has(fsnotify.Create):
		t.log.Debug().Str("path", t.path).Msg("file created, reading from start")
		t.close()
		if err := t.open(false); err != nil {
			return err
		}
		return t.read()
	case ev.Has(fsnotify.Rename), ev.Has(fsnotify.Remove):
		// Finish what was written before the file went away.
		if err := t.read(); err != nil {
			return err
		}
		t.close()
		return nil
	case ev.Has(fsnotify.Write):
		if t.f == nil {
			if err := t.open(false); err != nil {
				return err
			}
		}
		return t.read()
	}
	return nil
}

func (t *FileTail) open(atEnd bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("tail: open: %w", err)
	}
	t.offset = 0
	if atEnd {
		off, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return fmt.Errorf("tail: seek: %w", err)
		}
		t.offset = off
	}
	t.f = f
	t.r = bufio.NewReader(f)
	t.partial.Reset()
	return nil
}

func (t *FileTail) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
		t.r = nil
	}
}

// read captures every complete line available. A trailing line without a
// newline is kept until the rest of it arrives.
func (t *FileTail) read() error {
	if t.f == nil {
		return nil
	}
	if fi, err := t.f.Stat(); err == nil && fi.Size() < t.offset {
		t.log.Debug().Str("path", t.path).Msg("file truncated, reading from start")
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("tail: seek: %w", err)
		}
		t.offset = 0
		t.r.Reset(t.f)
		t.partial.Reset()
	}
	for {
		chunk, err := t.r.ReadString('\n')
		t.offset += int64(len(chunk))
		t.partial.WriteString(chunk)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("tail: read: %w", err)
		}
		line := t.partial.String()
		t.partial.Reset()
		if err := t.asm.line(line); err != nil {
			return fmt.Errorf("tail: capture: %w", err)
		}
	}
}
