// Package sources feeds external log text into a recorder.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/model"
)

// Capturer accepts events. *pipeline.Recorder satisfies it.
type Capturer interface {
	Capture(message, stackTrace string, sev model.Severity) error
}

// Source produces events until its input ends or ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, c Capturer) error
}

// Manager runs several sources at once.
type Manager struct {
	sources []Source
	log     *logging.Logger
}

// NewManager creates a Manager over srcs.
func NewManager(log *logging.Logger, srcs ...Source) *Manager {
	return &Manager{sources: srcs, log: logging.OrNop(log).With("sources")}
}

// Add registers another source. It must be called before Run.
func (m *Manager) Add(s Source) { m.sources = append(m.sources, s) }

// Len returns the number of registered sources.
func (m *Manager) Len() int { return len(m.sources) }

// Run starts every source and waits for all of them to return. A source
// ending early does not stop the others. Errors are joined; context
// cancellation is not reported as an error.
func (m *Manager) Run(ctx context.Context, c Capturer) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			m.log.Info().Str("source", s.Name()).Msg("source started")
			err := s.Run(ctx, c)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error().Err(err).Str("source", s.Name()).Msg("source failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("source %s: %w", s.Name(), err))
				mu.Unlock()
				return
			}
			m.log.Info().Str("source", s.Name()).Msg("source finished")
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ParseLine splits a plain log line into a severity and message. A leading
// level word such as "ERROR", "[warn]", "error:" or "level=error" sets the
// severity and is removed unless nothing follows it; otherwise the line is
// Info.
func ParseLine(line string) (model.Severity, string) {
	line = strings.TrimRight(line, "\r\n")
	first, rest, _ := strings.Cut(strings.TrimLeft(line, " \t"), " ")
	word := strings.TrimPrefix(strings.ToLower(first), "level=")
	word = strings.Trim(word, "[]:<>()")
	if word == "" || word == "log" {
		return model.Info, line
	}
	sev, err := model.ParseSeverity(word)
	if err != nil {
		return model.Info, line
	}
	sev, _ = sev.Normalize()
	if rest = strings.TrimSpace(rest); rest == "" {
		return sev, strings.TrimSpace(line)
	}
	return sev, rest
}

// isContinuation reports whether line belongs to the stack trace of the
// line before it.
func isContinuation(line string) bool {
	if line == "" {
		return false
	}
	if line[0] == ' ' || line[0] == '\t' {
		return true
	}
	return strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "Traceback ")
}

// assembler groups a line and its indented continuation lines into one
// event.
type assembler struct {
	c       Capturer
	pending bool
	sev     model.Severity
	msg     string
	stack   []string
}

func (a *assembler) line(l string) error {
	l = strings.TrimRight(l, "\r\n")
	if a.pending && isContinuation(l) {
		a.stack = append(a.stack, strings.TrimSpace(l))
		return nil
	}
	if err := a.flush(); err != nil {
		return err
	}
	if strings.TrimSpace(l) == "" {
		return nil
	}
	a.sev, a.msg = ParseLine(l)
	a.pending = true
	return nil
}

func (a *assembler) flush() error {
	if !a.pending {
		return nil
	}
	a.pending = false
	st := strings.Join(a.stack, "\n")
	a.stack = a.stack[:0]
	return a.c.Capture(a.msg, st, a.sev)
}
