package conversation

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// extractionGuard prevents two overlapping extraction tasks for the same
// inbound message. It only serializes extraction triggering; graph writes in
// general are the store's own concern.
type extractionGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newExtractionGuard() *extractionGuard {
	return &extractionGuard{inflight: make(map[string]struct{})}
}

// token derives the lock token for a message: the caller-supplied message ID
// when present, otherwise a hash of the message text.
func (g *extractionGuard) token(messageID, text string) string {
	if messageID != "" {
		return messageID
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("txt:%x", h.Sum64())
}

// tryAcquire inserts the token into the in-flight set. It returns false when
// the token is already held, in which case the caller must skip the task.
func (g *extractionGuard) tryAcquire(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.inflight[token]; held {
		return false
	}
	g.inflight[token] = struct{}{}
	return true
}

// release removes the token. Always called via defer so a panicking
// extraction task still frees its lock.
func (g *extractionGuard) release(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, token)
}
