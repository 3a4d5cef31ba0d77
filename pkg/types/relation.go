package types

import "time"

// Relation represents a directed, labeled edge between two entities.
// Both endpoints must already exist in the graph; a relation against a
// missing entity ID is rejected at the store layer.
type Relation struct {
	SourceID string `json:"source"`   // Source entity ID
	TargetID string `json:"target"`   // Target entity ID
	Label    string `json:"relation"` // Relation label (verb phrase, e.g. "habite_à", "works_on")

	// Confidence is the extraction confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Timestamp is the last-write time. Re-adding an existing triple
	// refreshes this rather than appending a duplicate edge.
	Timestamp time.Time `json:"timestamp"`

	// Temporal validity window, same semantics as Entity.
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`

	// Deleted marks the relation as soft-deleted.
	Deleted bool `json:"deleted,omitempty"`
}

// Triple returns the identity of the relation. Two relations with the same
// triple are the same logical edge: adding the second updates the first.
func (r *Relation) Triple() RelationTriple {
	return RelationTriple{SourceID: r.SourceID, Label: r.Label, TargetID: r.TargetID}
}

// ExpiredAt reports whether the relation's validity window has closed at t.
func (r *Relation) ExpiredAt(t time.Time) bool {
	return r.ValidTo != nil && r.ValidTo.Before(t)
}

// RelationTriple is the uniqueness key for a relation.
type RelationTriple struct {
	SourceID string
	Label    string
	TargetID string
}

// QueriedRelation is a relation as seen from a given entity's perspective.
// When the entity is the target rather than the source, Reverse is true and
// the label is presented with a reverse marker by formatting code.
type QueriedRelation struct {
	Relation
	Reverse bool `json:"reverse,omitempty"`
}
