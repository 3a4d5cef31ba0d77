package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/souvenir-ai/souvenir/internal/llm"
)

// pgSchema creates the archive table semantic search runs over. The
// embedding dimension matches nomic-embed-text; change both together.
const pgSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS archive_chunks (
	id        BIGSERIAL PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  JSONB NOT NULL DEFAULT '{}',
	embedding vector(768) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archive_chunks_embedding
	ON archive_chunks USING hnsw (embedding vector_cosine_ops);
`

// PgVectorSearcher is the Postgres/pgvector SemanticSearcher: archived
// content chunks are embedded on insert and recalled by cosine similarity.
type PgVectorSearcher struct {
	db       *sql.DB
	embedder llm.EmbeddingGenerator
}

// NewPgVectorSearcher connects to Postgres with the given lib/pq DSN,
// ensures the archive schema exists, and returns the searcher.
func NewPgVectorSearcher(dsn string, embedder llm.EmbeddingGenerator) (*PgVectorSearcher, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: failed to ping postgres: %w", err)
	}
	if _, err := db.Exec(pgSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: failed to create archive schema: %w", err)
	}
	return &PgVectorSearcher{db: db, embedder: embedder}, nil
}

// Archive embeds and stores one content chunk for later semantic recall.
func (p *PgVectorSearcher) Archive(ctx context.Context, content string, metadata map[string]string) error {
	emb, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("memory: failed to embed chunk: %w", err)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("memory: failed to encode metadata: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		"INSERT INTO archive_chunks (content, metadata, embedding) VALUES ($1, $2, $3)",
		content, meta, pgvector.NewVector(emb))
	if err != nil {
		return fmt.Errorf("memory: failed to insert chunk: %w", err)
	}
	return nil
}

// Search embeds the query and returns up to k chunks whose cosine similarity
// reaches minScore, best first.
func (p *PgVectorSearcher) Search(ctx context.Context, query string, k int, minScore float64) ([]SearchResult, error) {
	if k <= 0 {
		k = 2
	}
	emb, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to embed query: %w", err)
	}

	// <=> is cosine distance; similarity = 1 - distance.
	rows, err := p.db.QueryContext(ctx, `
		SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM archive_chunks
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(emb), minScore, k)
	if err != nil {
		return nil, fmt.Errorf("memory: semantic search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var meta []byte
		if err := rows.Scan(&r.Content, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("memory: failed to scan search row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				log.Printf("memory: skipping malformed chunk metadata: %v", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close releases the database handle.
func (p *PgVectorSearcher) Close() error {
	return p.db.Close()
}

var _ SemanticSearcher = (*PgVectorSearcher)(nil)
