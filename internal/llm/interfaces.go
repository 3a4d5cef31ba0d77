// Package llm provides the generation-service integration: an Ollama client
// with circuit-breaker protection and token streaming, tiered model
// selection, a retrying wrapper that degrades to a user-safe apology, and the
// strict-JSON extraction prompts with their response parser.
package llm

import (
	"context"

	"github.com/souvenir-ai/souvenir/internal/stream"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// TextGenerator is the interface for LLM text completion.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// StreamingGenerator extends TextGenerator with incremental token delivery.
// CompleteStream always returns the final complete text even when a sink is
// attached; a nil sink degrades to a plain completion.
type StreamingGenerator interface {
	TextGenerator
	CompleteStream(ctx context.Context, prompt string, sink stream.Sink) (string, error)
}

// TieredGenerator selects a model by complexity tier before completing.
type TieredGenerator interface {
	GenerateTier(ctx context.Context, prompt string, tier types.Tier, sink stream.Sink) (string, error)
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Returns float32 slices, matching what pgvector stores natively.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
