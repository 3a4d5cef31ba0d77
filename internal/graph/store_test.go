package graph_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souvenir-ai/souvenir/internal/config"
	"github.com/souvenir-ai/souvenir/internal/graph"
	"github.com/souvenir-ai/souvenir/internal/storage"
)

func newTestStore(t *testing.T) *graph.Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "backups"))
	require.NoError(t, err)
	return graph.NewStore(context.Background(), fs, nil)
}

func confPtr(v float64) *float64 { return &v }

func TestAddEntity_MintsSlugID(t *testing.T) {
	s := newTestStore(t)

	id := s.AddEntity(context.Background(), "Marie", "person", graph.EntityOptions{})
	assert.Equal(t, "marie", id)
}

func TestAddEntity_SlugFoldsAccentsAndPunctuation(t *testing.T) {
	s := newTestStore(t)

	id := s.AddEntity(context.Background(), "Café de l'Étoile", "place", graph.EntityOptions{})
	assert.Equal(t, "cafe_de_l_etoile", id)
}

// Entity ID stability: re-adding the same name (any casing) returns the same
// ID and archives the prior state.
func TestAddEntity_UpdateKeepsIDAndArchivesHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	second := s.AddEntity(ctx, "marie", "person", graph.EntityOptions{
		Attributes: map[string]string{"age": "30"},
	})

	assert.Equal(t, first, second)

	e := s.GetEntity(first)
	require.NotNil(t, e)
	assert.Equal(t, map[string]string{"age": "30"}, e.Attributes)
	assert.Len(t, e.History, 1, "update must archive exactly one prior snapshot")
}

func TestAddEntity_UpdateMergesAttributes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{
		Attributes: map[string]string{"age": "30"},
	})
	s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{
		Attributes: map[string]string{"ville": "Paris"},
	})

	e := s.GetEntity(id)
	require.NotNil(t, e)
	assert.Equal(t, "30", e.Attributes["age"], "existing attributes must survive the merge")
	assert.Equal(t, "Paris", e.Attributes["ville"])
}

func TestAddEntity_CollisionGetsNumericSuffix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "Jean-Luc" and "Jean Luc" slug to the same base but are different names.
	a := s.AddEntity(ctx, "Jean-Luc", "person", graph.EntityOptions{})
	b := s.AddEntity(ctx, "Jean@Luc", "person", graph.EntityOptions{})

	assert.Equal(t, "jean_luc", a)
	assert.Equal(t, "jean_luc_2", b)
}

func TestAddEntity_DefaultConfidence(t *testing.T) {
	s := newTestStore(t)

	id := s.AddEntity(context.Background(), "Marie", "person", graph.EntityOptions{})
	e := s.GetEntity(id)
	require.NotNil(t, e)
	assert.InDelta(t, 0.9, e.Confidence, 1e-9)
}

func TestFindEntityByName_CaseInsensitiveExactOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})

	assert.Equal(t, "marie", s.FindEntityByName("MARIE"))
	assert.Empty(t, s.FindEntityByName("Mari"), "no fuzzy matching at lookup time")
}

// Relation referential integrity: both endpoints must exist.
func TestAddRelation_RejectsMissingEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})

	ok := s.AddRelation(ctx, marie, "habite_à", "paris", graph.RelationOptions{})
	assert.False(t, ok)
	assert.Empty(t, s.GetAllRelations(true), "relation list must be unchanged")

	ok = s.AddRelation(ctx, "ghost", "connaît", marie, graph.RelationOptions{})
	assert.False(t, ok)
	assert.Empty(t, s.GetAllRelations(true))
}

// Relation idempotence: re-adding a triple updates in place.
func TestAddRelation_DuplicateTripleUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})

	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{Confidence: confPtr(0.5)}))
	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{Confidence: confPtr(0.8)}))

	rels := s.GetAllRelations(true)
	require.Len(t, rels, 1)
	assert.InDelta(t, 0.8, rels[0].Confidence, 1e-9, "confidence must reflect the second call")
}

func TestQueryRelations_ForwardAndReverse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})
	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{}))

	fromMarie := s.QueryRelations(marie, "", false)
	require.Len(t, fromMarie, 1)
	assert.False(t, fromMarie[0].Reverse)

	fromParis := s.QueryRelations(paris, "", false)
	require.Len(t, fromParis, 1)
	assert.True(t, fromParis[0].Reverse, "target-side edges carry the reverse marker")
}

func TestQueryRelations_LabelFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})
	cafe := s.AddEntity(ctx, "café", "concept", graph.EntityOptions{})
	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{}))
	require.True(t, s.AddRelation(ctx, marie, "aime", cafe, graph.RelationOptions{}))

	rels := s.QueryRelations(marie, "aime", false)
	require.Len(t, rels, 1)
	assert.Equal(t, "aime", rels[0].Label)
}

func TestQueryRelations_ExpiredFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	lyon := s.AddEntity(ctx, "Lyon", "place", graph.EntityOptions{})
	past := time.Now().Add(-time.Hour)
	require.True(t, s.AddRelation(ctx, marie, "habite_à", lyon, graph.RelationOptions{ValidTo: &past}))

	assert.Empty(t, s.QueryRelations(marie, "", false))
	assert.Len(t, s.QueryRelations(marie, "", true), 1)
}

func TestGetEntityHistory_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{Attributes: map[string]string{"age": "30"}})
	s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{Attributes: map[string]string{"age": "31"}})

	history := s.GetEntityHistory(id)
	require.Len(t, history, 3, "current state plus two archived snapshots")

	// Current state first, then snapshots newest first.
	assert.Equal(t, "31", history[0].OldValue.Attributes["age"])
	assert.Equal(t, "30", history[1].OldValue.Attributes["age"])
	assert.Empty(t, history[2].OldValue.Attributes)
}

func TestDeleteEntity_SoftDeleteOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	require.True(t, s.DeleteEntity(ctx, id))

	assert.Empty(t, s.GetAllEntities(true), "deleted entities are filtered from enumeration")
	assert.NotNil(t, s.GetEntity(id), "the record itself is never physically removed")
	assert.False(t, s.DeleteEntity(ctx, "ghost"))
}

func TestAddEntity_ReaddResurrectsSoftDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	require.True(t, s.DeleteEntity(ctx, id))

	again := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{
		Attributes: map[string]string{"age": "30"},
	})
	assert.Equal(t, id, again)

	live := s.GetAllEntities(true)
	require.Len(t, live, 1, "a fresh mention must bring the record back to life")
	assert.Equal(t, "30", live[0].Attributes["age"])
	assert.False(t, s.GetEntity(id).Deleted)
}

func TestAddRelation_ReaddResurrectsSoftDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})
	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{}))
	require.True(t, s.DeleteRelation(ctx, marie, "habite_à", paris))

	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{Confidence: confPtr(0.7)}))

	rels := s.GetAllRelations(true)
	require.Len(t, rels, 1, "re-adding the triple must revive the edge")
	assert.InDelta(t, 0.7, rels[0].Confidence, 1e-9)
	assert.Len(t, s.QueryRelations(marie, "", true), 1)
}

func TestAddEntity_ExplicitZeroConfidenceKept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{Confidence: confPtr(0)})
	assert.Zero(t, s.GetEntity(id).Confidence, "an explicit zero is not the same as unset")

	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})
	require.True(t, s.AddRelation(ctx, id, "habite_à", paris, graph.RelationOptions{Confidence: confPtr(0)}))
	rels := s.GetAllRelations(true)
	require.Len(t, rels, 1)
	assert.Zero(t, rels[0].Confidence)
}

func TestGetEntity_CopyDoesNotAliasStoreState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{
		Attributes: map[string]string{"age": "30"},
	})
	s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{
		Attributes: map[string]string{"age": "31"},
	})

	// Mutating a returned copy, its history included, must not leak back.
	e := s.GetEntity(id)
	e.Attributes["age"] = "99"
	e.History[0].OldValue.Attributes["age"] = "99"

	all := s.GetAllEntities(true)
	require.Len(t, all, 1)
	all[0].Attributes["age"] = "98"

	fresh := s.GetEntity(id)
	assert.Equal(t, "31", fresh.Attributes["age"])
	assert.Equal(t, "30", fresh.History[0].OldValue.Attributes["age"])

	history := s.GetEntityHistory(id)
	history[1].OldValue.Attributes["age"] = "97"
	assert.Equal(t, "30", s.GetEntityHistory(id)[1].OldValue.Attributes["age"])
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	s := graph.NewStore(ctx, fs, nil)
	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{Attributes: map[string]string{"age": "30"}})
	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})
	require.True(t, s.AddRelation(ctx, marie, "habite_à", paris, graph.RelationOptions{}))

	reopened := graph.NewStore(ctx, fs, nil)
	e := reopened.GetEntity(marie)
	require.NotNil(t, e)
	assert.Equal(t, "30", e.Attributes["age"])
	assert.Len(t, reopened.GetAllRelations(false), 1)
}

func TestStore_CorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.NoError(t, fs.Write(ctx, graph.SnapshotName, []byte("{not json")))

	s := graph.NewStore(ctx, fs, nil)
	assert.Empty(t, s.GetAllEntities(true))
}

func TestStore_BatchModeDefersSaves(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	s := graph.NewStore(ctx, fs, nil)
	s.SetBatchMode(true)
	s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})

	exists, err := fs.Exists(ctx, graph.SnapshotName)
	require.NoError(t, err)
	assert.False(t, exists, "batch mode must defer persistence")

	require.NoError(t, s.Flush(ctx))
	exists, err = fs.Exists(ctx, graph.SnapshotName)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSave_RunsPostprocessorOverWholeGraph(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	rules := &config.RewriteRules{
		RelationSynonyms: map[string]string{"vit_à": "habite_à"},
	}
	s := graph.NewStore(ctx, fs, rules)
	marie := s.AddEntity(ctx, "Marie", "person", graph.EntityOptions{})
	paris := s.AddEntity(ctx, "Paris", "place", graph.EntityOptions{})
	require.True(t, s.AddRelation(ctx, marie, "vit_à", paris, graph.RelationOptions{}))
	require.NoError(t, s.Save(ctx))

	rels := s.GetAllRelations(false)
	require.Len(t, rels, 1)
	assert.Equal(t, "habite_à", rels[0].Label, "save must rewrite labels through the synonym table")
}
