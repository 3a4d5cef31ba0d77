// Package types defines the core data structures for the Souvenir memory
// system: knowledge-graph entities and relations, conversation messages, and
// routing results. The graph snapshot layout here is the on-disk format.
package types

// Graph is a full knowledge-graph snapshot: the unit of persistence and the
// unit the postprocessor operates on. Entities are keyed by their stable ID;
// relations are an ordered list (order matters for dedup, which keeps the
// first occurrence of a triple).
type Graph struct {
	Entities  map[string]*Entity `json:"entities"`
	Relations []*Relation        `json:"relations"`
}

// NewGraph returns an empty graph ready for use.
func NewGraph() *Graph {
	return &Graph{
		Entities:  make(map[string]*Entity),
		Relations: make([]*Relation, 0),
	}
}

// Clone returns a deep copy of the graph. The postprocessor works on a clone
// so a failed pass never corrupts the live in-memory state.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Entities:  make(map[string]*Entity, len(g.Entities)),
		Relations: make([]*Relation, 0, len(g.Relations)),
	}
	for id, e := range g.Entities {
		out.Entities[id] = e.Clone()
	}
	for _, r := range g.Relations {
		cr := *r
		out.Relations = append(out.Relations, &cr)
	}
	return out
}
