package output

import "context"

// Output is a destination for coalesced log text. Each Append receives one
// or more complete, newline-terminated lines and must write them in a
// single operation.
type Output interface {
	Append(ctx context.Context, blob []byte) error
	Close() error
}
