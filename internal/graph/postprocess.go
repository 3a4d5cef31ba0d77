package graph

import (
	"math"
	"sort"

	"github.com/souvenir-ai/souvenir/internal/config"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// DefaultMergeThreshold is the similarity ratio at or above which two entity
// names are collapsed into one entity during postprocessing.
const DefaultMergeThreshold = 0.92

// Postprocess normalizes a whole graph snapshot and returns a new graph with
// remapped IDs, ready to replace the in-memory state. It never mutates its
// input. The pass is idempotent: running it on its own output is a no-op.
//
// Steps, in order:
//  1. map raw entity names through the alias table (case-insensitive keys),
//  2. refine entity types through the name→type override table,
//  3. rewrite relation labels through the synonym table,
//  4. fuzzy-merge near-duplicate entities (threshold rules.MergeThreshold,
//     defaulting to DefaultMergeThreshold) and remap merged IDs everywhere,
//  5. deduplicate relations, keeping the first occurrence of each triple and
//     rounding confidence to two decimals.
//
// Entities are visited in creation order, so the first-seen form of a name
// is the canonical one and later near-duplicates merge into it.
func Postprocess(g *types.Graph, rules *config.RewriteRules) *types.Graph {
	if rules == nil {
		rules = &config.RewriteRules{}
	}
	threshold := rules.MergeThreshold
	if threshold == 0 {
		threshold = DefaultMergeThreshold
	}

	src := g.Clone()
	out := types.NewGraph()

	// idRemap records merged-away IDs so relations can follow their entity.
	idRemap := make(map[string]string)

	for _, e := range entitiesInCreationOrder(src) {
		e.Name = applyAlias(e.Name, rules.Aliases)
		if override, ok := lookupFold(rules.TypeOverrides, e.Name); ok {
			e.Type = override
		}

		if kept := closestMatch(out, e.Name, threshold); kept != nil {
			mergeEntity(kept, e)
			idRemap[e.ID] = kept.ID
			continue
		}
		out.Entities[e.ID] = e
	}

	// Rewrite labels, remap endpoints, then dedup keeping first occurrence.
	seen := make(map[types.RelationTriple]bool)
	for _, r := range src.Relations {
		if canonical, ok := lookupFold(rules.RelationSynonyms, r.Label); ok {
			r.Label = canonical
		}
		if mapped, ok := idRemap[r.SourceID]; ok {
			r.SourceID = mapped
		}
		if mapped, ok := idRemap[r.TargetID]; ok {
			r.TargetID = mapped
		}
		if seen[r.Triple()] {
			continue
		}
		seen[r.Triple()] = true
		r.Confidence = math.Round(r.Confidence*100) / 100
		out.Relations = append(out.Relations, r)
	}

	return out
}

// entitiesInCreationOrder returns the graph's entities sorted by CreatedAt,
// ties broken by ID so the order is stable across reloads.
func entitiesInCreationOrder(g *types.Graph) []*types.Entity {
	out := make([]*types.Entity, 0, len(g.Entities))
	for _, e := range g.Entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// applyAlias maps a raw name through the alias table. Keys match
// case-insensitively on the folded form; a hit replaces the display name.
func applyAlias(name string, aliases map[string]string) string {
	if canonical, ok := lookupFold(aliases, name); ok {
		return canonical
	}
	return name
}

// lookupFold performs a case-insensitive, accent-folded lookup in a rewrite
// table.
func lookupFold(table map[string]string, key string) (string, bool) {
	if len(table) == 0 {
		return "", false
	}
	norm := normalizeName(key)
	for k, v := range table {
		if normalizeName(k) == norm {
			return v, true
		}
	}
	return "", false
}

// closestMatch finds the already-accepted entity whose name is most similar
// to name, provided the best ratio reaches the threshold. Exact
// (fold-normalized) matches win immediately.
func closestMatch(g *types.Graph, name string, threshold float64) *types.Entity {
	norm := normalizeName(name)
	var best *types.Entity
	bestRatio := 0.0
	for _, kept := range g.Entities {
		ratio := similarityRatio(norm, normalizeName(kept.Name))
		if ratio > bestRatio {
			bestRatio = ratio
			best = kept
		}
	}
	if best != nil && bestRatio >= threshold {
		return best
	}
	return nil
}

// mergeEntity folds the duplicate entity into the kept one: attributes are
// unioned with the kept entity's values winning, the wider validity window
// is retained, and the higher confidence survives. The kept ID and name stay
// as they are (first seen is canonical).
func mergeEntity(kept, dup *types.Entity) {
	if kept.Attributes == nil {
		kept.Attributes = make(map[string]string, len(dup.Attributes))
	}
	for k, v := range dup.Attributes {
		if _, exists := kept.Attributes[k]; !exists {
			kept.Attributes[k] = v
		}
	}
	if dup.Confidence > kept.Confidence {
		kept.Confidence = dup.Confidence
	}
	if dup.ValidFrom != nil && (kept.ValidFrom == nil || dup.ValidFrom.Before(*kept.ValidFrom)) {
		kept.ValidFrom = dup.ValidFrom
	}
	if kept.ValidTo != nil && (dup.ValidTo == nil || dup.ValidTo.After(*kept.ValidTo)) {
		kept.ValidTo = dup.ValidTo
	}
	if dup.LastUpdated.After(kept.LastUpdated) {
		kept.LastUpdated = dup.LastUpdated
	}
	if kept.Type == "" {
		kept.Type = dup.Type
	}
	kept.History = append(kept.History, dup.History...)
}
