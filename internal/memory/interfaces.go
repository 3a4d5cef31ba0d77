// Package memory provides the two non-graph memory sources the router can
// enrich from: condensed synthetic summaries of past conversation, and
// semantic (vector) search over archived content.
package memory

import (
	"context"

	"github.com/souvenir-ai/souvenir/pkg/types"
)

// SearchResult is one semantic-search hit.
type SearchResult struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SemanticSearcher finds stored content semantically similar to a query.
type SemanticSearcher interface {
	// Search returns up to k results with similarity at or above minScore,
	// best first.
	Search(ctx context.Context, query string, k int, minScore float64) ([]SearchResult, error)
}

// Note is one stored synthetic-memory entry.
type Note struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// SyntheticMemory condenses and recalls conversation history.
type SyntheticMemory interface {
	// Summarize condenses conversation turns into a short factual note,
	// stores it under topic, and returns the summary text.
	Summarize(ctx context.Context, turns []types.Message, topic string) (string, error)

	// Relevant returns up to max stored notes relevant to the query,
	// optionally restricted to a topic. This is a read-only path: it must
	// not call the generation service.
	Relevant(ctx context.Context, query, topic string, max int) ([]Note, error)

	// RememberExplicit stores text verbatim under topic (the "souviens-toi"
	// path) and returns the note ID.
	RememberExplicit(ctx context.Context, text, topic string) (string, error)
}
