package stream

import (
	"context"
	"strings"
	"sync"
)

// BufferSink collects streamed tokens in memory for callers that want the
// incremental output after the fact rather than live.
type BufferSink struct {
	mu     sync.Mutex
	b      strings.Builder
	closed bool
}

// WriteToken appends the chunk to the buffer.
func (s *BufferSink) WriteToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.WriteString(token)
	return nil
}

// Done marks the stream complete. The final text is not re-appended; the
// buffer already holds the concatenated tokens.
func (s *BufferSink) Done(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// String returns the text collected so far.
func (s *BufferSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// Completed reports whether Done has been called.
func (s *BufferSink) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ Sink = (*BufferSink)(nil)
