// Package stream defines the live output channel a generation call can
// stream incremental tokens through, plus a websocket-backed implementation
// for callers that keep a socket open to the end user.
package stream

import "context"

// Sink receives incremental generation output. Implementations must tolerate
// being written to from a goroutine other than the one that created them.
// A nil Sink is always legal at call sites: it simply means "no live output".
type Sink interface {
	// WriteToken delivers one incremental chunk of generated text.
	WriteToken(ctx context.Context, token string) error

	// Done signals that the final complete text has been produced.
	Done(ctx context.Context, full string) error
}
