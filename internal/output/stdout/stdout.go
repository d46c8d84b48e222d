package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Output echoes appended text to a writer, stdout by default.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates an Output writing to w. A nil w means os.Stdout.
func New(w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{w: w}
}

func (o *Output) Append(_ context.Context, blob []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(blob); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
