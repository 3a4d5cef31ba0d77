// Package graph implements the durable knowledge graph at the heart of
// Souvenir: a store of entities and relations with confidence and temporal
// validity, normalized and deduplicated by a postprocessing pass on every
// save.
//
// The store keeps the whole graph in memory behind a RWMutex and persists
// full snapshots through a storage.SnapshotStore. Reads (context lookups from
// the router) and writes (background extraction) may race; each save produces
// a fully self-consistent snapshot and the last writer wins.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/souvenir-ai/souvenir/internal/config"
	"github.com/souvenir-ai/souvenir/internal/storage"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// SnapshotName is the key the graph is persisted under.
const SnapshotName = "graph.json"

// DefaultConfidence is assigned to entities and relations added without an
// explicit confidence.
const DefaultConfidence = 0.9

// Store is the knowledge graph store. All public methods are safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	graph *types.Graph

	snapshots storage.SnapshotStore
	rules     *config.RewriteRules

	// batch defers persistence during bulk imports; Flush() saves once.
	batch    bool
	lastSave time.Time
}

// EntityOptions carries the optional fields of AddEntity. The zero value
// means: no attributes, DefaultConfidence, valid from now, no expiry.
type EntityOptions struct {
	Attributes map[string]string

	// Confidence overrides DefaultConfidence when non-nil. A pointer, not a
	// float, so an explicit zero survives instead of reading as "unset".
	Confidence *float64

	ValidFrom *time.Time
	ValidTo   *time.Time
}

// RelationOptions carries the optional fields of AddRelation. The zero value
// means DefaultConfidence and validity from now.
type RelationOptions struct {
	// Confidence overrides DefaultConfidence when non-nil.
	Confidence *float64

	ValidFrom *time.Time
	ValidTo   *time.Time
}

// Stats summarizes the store for operational logging.
type Stats struct {
	EntityCount   int
	RelationCount int
	LastSave      time.Time
}

// NewStore creates a graph store backed by the given snapshot store and
// rewrite rules. The persisted snapshot is loaded if present; a corrupt or
// unreadable snapshot logs a warning and starts from an empty graph rather
// than failing the process.
func NewStore(ctx context.Context, snapshots storage.SnapshotStore, rules *config.RewriteRules) *Store {
	if rules == nil {
		rules = &config.RewriteRules{}
	}
	s := &Store{
		graph:     types.NewGraph(),
		snapshots: snapshots,
		rules:     rules,
	}
	s.load(ctx)
	return s
}

// load reads the persisted snapshot into memory. Any failure leaves the
// store with an empty graph.
func (s *Store) load(ctx context.Context) {
	data, err := s.snapshots.Read(ctx, SnapshotName)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("graph: failed to read snapshot, starting empty: %v", err)
		return
	}
	var g types.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		log.Printf("graph: malformed snapshot, starting empty: %v", err)
		return
	}
	if g.Entities == nil {
		g.Entities = make(map[string]*types.Entity)
	}
	s.graph = &g
	log.Printf("graph: loaded %d entities, %d relations", len(g.Entities), len(g.Relations))
}

// AddEntity creates or updates an entity and returns its stable ID.
//
// If an entity with the same name already exists (case-insensitive exact
// match), the call is an update: the pre-mutation state is archived into the
// entity's history, the type is overwritten, attributes are merged, and the
// confidence and validity window are refreshed. Otherwise a new entity is
// minted with a slug ID derived from the name (numeric suffix on collision).
//
// The graph is persisted after every call unless batch mode is active.
func (s *Store) AddEntity(ctx context.Context, name, entityType string, opts EntityOptions) string {
	now := time.Now()
	confidence := DefaultConfidence
	if opts.Confidence != nil {
		confidence = *opts.Confidence
	}
	validFrom := opts.ValidFrom
	if validFrom == nil {
		validFrom = &now
	}

	s.mu.Lock()
	if existing := s.findByNameLocked(name); existing != nil {
		existing.History = append(existing.History, types.Snapshot{
			Timestamp: now,
			OldValue:  existing.State(),
		})
		existing.Type = entityType
		if existing.Attributes == nil {
			existing.Attributes = make(map[string]string, len(opts.Attributes))
		}
		for k, v := range opts.Attributes {
			existing.Attributes[k] = v
		}
		existing.Confidence = confidence
		existing.ValidFrom = validFrom
		existing.ValidTo = opts.ValidTo
		existing.LastUpdated = now
		// A fresh mention resurrects a soft-deleted record.
		existing.Deleted = false
		id := existing.ID
		s.mu.Unlock()

		s.persist(ctx)
		return id
	}

	id := s.mintIDLocked(name)
	attrs := make(map[string]string, len(opts.Attributes))
	for k, v := range opts.Attributes {
		attrs[k] = v
	}
	s.graph.Entities[id] = &types.Entity{
		ID:          id,
		Name:        name,
		Type:        entityType,
		Attributes:  attrs,
		Confidence:  confidence,
		ValidFrom:   validFrom,
		ValidTo:     opts.ValidTo,
		CreatedAt:   now,
		LastUpdated: now,
		History:     []types.Snapshot{},
	}
	s.mu.Unlock()

	s.persist(ctx)
	return id
}

// mintIDLocked generates a fresh slug ID, appending a numeric suffix until
// it no longer collides with an existing entity. Caller holds the lock.
func (s *Store) mintIDLocked(name string) string {
	base := Slugify(name)
	id := base
	for suffix := 2; ; suffix++ {
		if _, taken := s.graph.Entities[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// findByNameLocked returns the entity whose name matches case-insensitively,
// or nil. Caller holds the lock.
func (s *Store) findByNameLocked(name string) *types.Entity {
	norm := normalizeName(name)
	for _, e := range s.graph.Entities {
		if normalizeName(e.Name) == norm {
			return e
		}
	}
	return nil
}

// FindEntityByName returns the ID of the entity whose name matches
// case-insensitively, or "" when absent. Fuzzy matching is deliberately not
// done here; near-duplicates are collapsed by the postprocessor at save time.
func (s *Store) FindEntityByName(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.findByNameLocked(name); e != nil {
		return e.ID
	}
	return ""
}

// GetEntity returns a deep copy of the entity with the given ID, or nil.
func (s *Store) GetEntity(id string) *types.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.graph.Entities[id]
	if !ok {
		return nil
	}
	return e.Clone()
}

// AddRelation records a directed labeled edge between two existing entities.
// It returns false (and leaves the graph untouched) when either endpoint ID
// is absent. Re-adding an existing (source, label, target) triple updates
// its confidence, timestamp, and validity in place instead of duplicating.
func (s *Store) AddRelation(ctx context.Context, sourceID, label, targetID string, opts RelationOptions) bool {
	now := time.Now()
	confidence := DefaultConfidence
	if opts.Confidence != nil {
		confidence = *opts.Confidence
	}
	validFrom := opts.ValidFrom
	if validFrom == nil {
		validFrom = &now
	}

	s.mu.Lock()
	if _, ok := s.graph.Entities[sourceID]; !ok {
		s.mu.Unlock()
		log.Printf("graph: relation rejected, unknown source %q", sourceID)
		return false
	}
	if _, ok := s.graph.Entities[targetID]; !ok {
		s.mu.Unlock()
		log.Printf("graph: relation rejected, unknown target %q", targetID)
		return false
	}

	for _, r := range s.graph.Relations {
		if r.SourceID == sourceID && r.Label == label && r.TargetID == targetID {
			r.Confidence = confidence
			r.Timestamp = now
			r.ValidFrom = validFrom
			r.ValidTo = opts.ValidTo
			// Re-adding the triple resurrects a soft-deleted edge.
			r.Deleted = false
			s.mu.Unlock()
			s.persist(ctx)
			return true
		}
	}

	s.graph.Relations = append(s.graph.Relations, &types.Relation{
		SourceID:   sourceID,
		TargetID:   targetID,
		Label:      label,
		Confidence: confidence,
		Timestamp:  now,
		ValidFrom:  validFrom,
		ValidTo:    opts.ValidTo,
	})
	s.mu.Unlock()

	s.persist(ctx)
	return true
}

// QueryRelations returns the relations touching an entity: edges where it is
// the source, plus reverse-marked edges where it is the target. An optional
// label filter narrows the result; expired relations are excluded unless
// includeExpired is set.
func (s *Store) QueryRelations(entityID, label string, includeExpired bool) []types.QueriedRelation {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.QueriedRelation
	for _, r := range s.graph.Relations {
		if r.Deleted {
			continue
		}
		if label != "" && r.Label != label {
			continue
		}
		if !includeExpired && r.ExpiredAt(now) {
			continue
		}
		switch entityID {
		case r.SourceID:
			out = append(out, types.QueriedRelation{Relation: *r})
		case r.TargetID:
			out = append(out, types.QueriedRelation{Relation: *r, Reverse: true})
		}
	}
	return out
}

// GetAllEntities returns deep copies of every live entity, excluding expired
// ones unless includeExpired is set. Soft-deleted entities are never
// returned.
func (s *Store) GetAllEntities(includeExpired bool) []*types.Entity {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Entity, 0, len(s.graph.Entities))
	for _, e := range s.graph.Entities {
		if e.Deleted {
			continue
		}
		if !includeExpired && e.ExpiredAt(now) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

// GetAllRelations returns copies of every live relation, excluding expired
// ones unless includeExpired is set.
func (s *Store) GetAllRelations(includeExpired bool) []*types.Relation {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Relation, 0, len(s.graph.Relations))
	for _, r := range s.graph.Relations {
		if r.Deleted {
			continue
		}
		if !includeExpired && r.ExpiredAt(now) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out
}

// GetEntityHistory returns the entity's current state followed by all
// archived snapshots, newest first. Returns nil for an unknown ID.
func (s *Store) GetEntityHistory(entityID string) []types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.graph.Entities[entityID]
	if !ok {
		return nil
	}
	// Clone so the archived attribute maps are not shared with the caller.
	ce := e.Clone()
	out := make([]types.Snapshot, 0, len(ce.History)+1)
	out = append(out, types.Snapshot{Timestamp: ce.LastUpdated, OldValue: ce.State()})
	for i := len(ce.History) - 1; i >= 0; i-- {
		out = append(out, ce.History[i])
	}
	return out
}

// DeleteEntity soft-deletes an entity. The record stays in the graph so
// history and relation references remain valid. Returns false for an
// unknown ID.
func (s *Store) DeleteEntity(ctx context.Context, entityID string) bool {
	s.mu.Lock()
	e, ok := s.graph.Entities[entityID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	e.Deleted = true
	e.LastUpdated = time.Now()
	s.mu.Unlock()

	s.persist(ctx)
	return true
}

// DeleteRelation soft-deletes the relation with the given triple. Returns
// false when the triple is not present.
func (s *Store) DeleteRelation(ctx context.Context, sourceID, label, targetID string) bool {
	s.mu.Lock()
	var found bool
	for _, r := range s.graph.Relations {
		if r.SourceID == sourceID && r.Label == label && r.TargetID == targetID && !r.Deleted {
			r.Deleted = true
			r.Timestamp = time.Now()
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.persist(ctx)
	}
	return found
}

// SetBatchMode toggles deferred persistence for bulk imports. Leaving batch
// mode does not save by itself; call Flush.
func (s *Store) SetBatchMode(enabled bool) {
	s.mu.Lock()
	s.batch = enabled
	s.mu.Unlock()
}

// Flush forces a save regardless of batch mode.
func (s *Store) Flush(ctx context.Context) error {
	return s.Save(ctx)
}

// persist saves unless batch mode defers it. Save failures are logged, not
// propagated: a failed save must never break the conversation path.
func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	deferred := s.batch
	s.mu.RUnlock()
	if deferred {
		return
	}
	if err := s.Save(ctx); err != nil {
		log.Printf("graph: save failed: %v", err)
	}
}

// Save writes the graph to durable storage. Every save:
//  1. backs up the previous on-disk snapshot under a timestamped name,
//  2. runs the postprocessor over the entire in-memory graph,
//  3. adopts the postprocessed graph as the new in-memory state,
//  4. serializes it.
//
// Postprocessing is idempotent, so re-running it on every save is safe.
func (s *Store) Save(ctx context.Context) error {
	if err := s.snapshots.Backup(ctx, SnapshotName); err != nil {
		log.Printf("graph: snapshot backup failed: %v", err)
	}

	s.mu.Lock()
	processed := Postprocess(s.graph, s.rules)
	s.graph = processed
	data, err := json.MarshalIndent(processed, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("graph: failed to serialize snapshot: %w", err)
	}

	if err := s.snapshots.Write(ctx, SnapshotName, data); err != nil {
		return fmt.Errorf("graph: failed to write snapshot: %w", err)
	}

	s.mu.Lock()
	s.lastSave = time.Now()
	s.mu.Unlock()
	return nil
}

// Stats returns entity/relation counts and the last successful save time.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		EntityCount:   len(s.graph.Entities),
		RelationCount: len(s.graph.Relations),
		LastSave:      s.lastSave,
	}
}
