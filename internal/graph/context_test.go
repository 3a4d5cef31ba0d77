package graph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souvenir-ai/souvenir/internal/graph"
)

func TestGetContextForQuery_MatchesEntityNamesInQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{
		Attributes: map[string]string{"age": "30"},
	})
	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})
	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{}))

	block := s.GetContextForQuery("Où habite Marie en ce moment ?", 3)

	assert.Contains(t, block, "Marie (person)")
	assert.Contains(t, block, "age: 30")
	assert.Contains(t, block, "Marie habite_à Paris")
}

func TestGetContextForQuery_AccentInsensitiveMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AddEntity(ctx, "café", "concept", graph.EntityOptions{})

	block := s.GetContextForQuery("est-ce que j'aime le cafe ?", 3)
	assert.Contains(t, block, "café (concept)")
}

func TestGetContextForQuery_NoMatchReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	s.AddEntity(context.Background(), "Marie", "person", graph.EntityOptions{})

	assert.Empty(t, s.GetContextForQuery("quelle heure est-il ?", 3))
}

func TestGetContextForQuery_CapsResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AddEntity(ctx, "un", "concept", graph.EntityOptions{})
	s.AddEntity(ctx, "deux", "concept", graph.EntityOptions{})
	s.AddEntity(ctx, "trois", "concept", graph.EntityOptions{})

	block := s.GetContextForQuery("un deux trois", 2)

	count := 0
	for _, name := range []string{"un (concept)", "deux (concept)", "trois (concept)"} {
		if strings.Contains(block, name) {
			count++
		}
	}
	assert.Equal(t, 2, count, "at most maxResults entities are rendered")
}
