package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/logbook/internal/output"
)

// Multi delivers every blob to each wrapped output in order. A failing
// output does not stop delivery to the ones after it.
type Multi struct {
	outputs []output.Output
}

// New wraps outputs; nil entries are skipped.
func New(outputs ...output.Output) *Multi {
	m := &Multi{outputs: make([]output.Output, 0, len(outputs))}
	for _, o := range outputs {
		if o != nil {
			m.outputs = append(m.outputs, o)
		}
	}
	return m
}

// Len reports how many outputs are wrapped.
func (m *Multi) Len() int { return len(m.outputs) }

// Append returns the failures of every output, each tagged with the
// output's position.
func (m *Multi) Append(ctx context.Context, blob []byte) error {
	var errs []error
	for i, o := range m.outputs {
		if err := o.Append(ctx, blob); err != nil {
			errs = append(errs, fmt.Errorf("multi: output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every output, even after a failure.
func (m *Multi) Close() error {
	var errs []error
	for i, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, fmt.Errorf("multi: close output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
