package types

import "time"

// Entity represents a named node in the knowledge graph.
// Entities can be people, places, devices, concepts, etc. The ID is a slug
// derived from the normalized name and is never regenerated once minted,
// even if the display name later changes through alias rewriting.
type Entity struct {
	// Core identification fields
	ID   string `json:"id"`   // Stable slug identifier (format: normalized name, "_2" suffix on collision)
	Name string `json:"name"` // Display name
	Type string `json:"type"` // Open-ended category tag (person, place, device, concept, ...)

	// Attributes are arbitrary key→value facts about the entity.
	// Updates merge into this map; they never replace it wholesale.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Confidence is the extraction confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Temporal validity window. A nil ValidTo means indefinitely valid.
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`

	// CreatedAt records when the entity was first minted. The postprocessor
	// visits entities in creation order so the first-seen name stays the
	// canonical one across merges, even after a reload.
	CreatedAt time.Time `json:"created_at"`

	// LastUpdated is the timestamp of the most recent mutation.
	LastUpdated time.Time `json:"last_updated"`

	// History holds pre-mutation snapshots, newest last. Every update of an
	// existing entity appends the prior state here before applying changes.
	History []Snapshot `json:"history,omitempty"`

	// Deleted marks the entity as soft-deleted. Entities are never physically
	// removed so history and relation back-references stay valid.
	Deleted bool `json:"deleted,omitempty"`
}

// Snapshot is an archived prior state of an entity.
type Snapshot struct {
	Timestamp time.Time   `json:"timestamp"`
	OldValue  EntityState `json:"old_value"`
}

// EntityState is the mutable portion of an entity captured in a history
// snapshot. The ID and history itself are excluded: the ID never changes and
// nesting histories would grow quadratically.
type EntityState struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Confidence float64           `json:"confidence"`
	ValidFrom  *time.Time        `json:"valid_from,omitempty"`
	ValidTo    *time.Time        `json:"valid_to,omitempty"`
}

// Clone returns a deep copy that shares no mutable state with the receiver.
// The attribute map and the history slice, including the attribute maps
// inside archived snapshots, get their own backing storage so the copy can
// be handed outside a store's lock.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Attributes = make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		c.Attributes[k] = v
	}
	c.History = make([]Snapshot, len(e.History))
	for i, snap := range e.History {
		attrs := make(map[string]string, len(snap.OldValue.Attributes))
		for k, v := range snap.OldValue.Attributes {
			attrs[k] = v
		}
		snap.OldValue.Attributes = attrs
		c.History[i] = snap
	}
	return &c
}

// State captures the entity's current mutable state for archival.
// The attribute map is copied so later merges cannot mutate the snapshot.
func (e *Entity) State() EntityState {
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return EntityState{
		Name:       e.Name,
		Type:       e.Type,
		Attributes: attrs,
		Confidence: e.Confidence,
		ValidFrom:  e.ValidFrom,
		ValidTo:    e.ValidTo,
	}
}

// ExpiredAt reports whether the entity's validity window has closed at t.
func (e *Entity) ExpiredAt(t time.Time) bool {
	return e.ValidTo != nil && e.ValidTo.Before(t)
}
