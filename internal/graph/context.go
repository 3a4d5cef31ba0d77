package graph

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/souvenir-ai/souvenir/pkg/types"
)

// maxRelationsPerEntity bounds how many relations are rendered per matched
// entity in a context block.
const maxRelationsPerEntity = 5

// GetContextForQuery matches entity names against the query text by naive
// substring search and renders up to maxResults matching entities with their
// attributes and up to five relations each as a plain-text block.
//
// This is the router's cheap symbolic-lookup path: it touches only the
// in-memory graph and must never call the network or the generation service.
// Returns "" when nothing matches.
func (s *Store) GetContextForQuery(query string, maxResults int) string {
	if maxResults <= 0 {
		maxResults = 3
	}
	queryNorm := normalizeName(query)
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*types.Entity
	for _, e := range s.graph.Entities {
		if e.Deleted || e.ExpiredAt(now) {
			continue
		}
		if strings.Contains(queryNorm, normalizeName(e.Name)) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return ""
	}

	// Longer names are more specific matches; prefer them, then keep the
	// ordering stable by name.
	sort.Slice(matched, func(i, j int) bool {
		if len(matched[i].Name) != len(matched[j].Name) {
			return len(matched[i].Name) > len(matched[j].Name)
		}
		return matched[i].Name < matched[j].Name
	})
	if len(matched) > maxResults {
		matched = matched[:maxResults]
	}

	var b strings.Builder
	for _, e := range matched {
		fmt.Fprintf(&b, "%s (%s)", e.Name, e.Type)
		if len(e.Attributes) > 0 {
			keys := make([]string, 0, len(e.Attributes))
			for k := range e.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, fmt.Sprintf("%s: %s", k, e.Attributes[k]))
			}
			fmt.Fprintf(&b, " [%s]", strings.Join(pairs, ", "))
		}
		b.WriteString("\n")

		count := 0
		for _, r := range s.graph.Relations {
			if count >= maxRelationsPerEntity {
				break
			}
			if r.Deleted || r.ExpiredAt(now) {
				continue
			}
			switch e.ID {
			case r.SourceID:
				if target, ok := s.graph.Entities[r.TargetID]; ok {
					fmt.Fprintf(&b, "  - %s %s %s\n", e.Name, r.Label, target.Name)
					count++
				}
			case r.TargetID:
				if source, ok := s.graph.Entities[r.SourceID]; ok {
					fmt.Fprintf(&b, "  - %s %s %s\n", source.Name, r.Label, e.Name)
					count++
				}
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
