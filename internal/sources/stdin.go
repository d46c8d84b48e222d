package sources

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

const maxLine = 1 << 20

// Reader captures one event per line of an io.Reader, attaching indented
// continuation lines as the event's stack trace.
type Reader struct {
	name string
	r    io.Reader
}

// Stdin returns a source reading os.Stdin.
func Stdin() *Reader { return NewReader("stdin", os.Stdin) }

// NewReader returns a source reading r.
func NewReader(name string, r io.Reader) *Reader { return &Reader{name: name, r: r} }

func (s *Reader) Name() string { return s.name }

// Run reads until EOF. Cancellation is noticed between lines.
func (s *Reader) Run(ctx context.Context, c Capturer) error {
	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	a := &assembler{c: c}
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			a.flush()
			return err
		}
		if err := a.line(sc.Text()); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if err := a.flush(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", s.name, err)
	}
	return nil
}
