package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/souvenir-ai/souvenir/internal/llm"
	"github.com/souvenir-ai/souvenir/internal/storage"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// notesSnapshotName is the key synthetic notes are persisted under.
const notesSnapshotName = "synthetic_notes.json"

// SyntheticStore is the LLM-backed SyntheticMemory implementation: summaries
// are condensed by the generation service and persisted as notes; recall is
// plain keyword-overlap scoring so the read path never hits the network.
type SyntheticStore struct {
	mu        sync.RWMutex
	notes     []Note
	generator llm.TextGenerator
	snapshots storage.SnapshotStore
}

// NewSyntheticStore loads any persisted notes and returns the store. A
// missing or corrupt notes file starts empty; summarization still works.
func NewSyntheticStore(ctx context.Context, generator llm.TextGenerator, snapshots storage.SnapshotStore) *SyntheticStore {
	s := &SyntheticStore{
		generator: generator,
		snapshots: snapshots,
	}
	data, err := snapshots.Read(ctx, notesSnapshotName)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("memory: failed to load notes, starting empty: %v", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.notes); err != nil {
		log.Printf("memory: malformed notes file, starting empty: %v", err)
		s.notes = nil
	}
	return s
}

// Summarize condenses the given turns through the generation service and
// stores the result as a note under topic.
func (s *SyntheticStore) Summarize(ctx context.Context, turns []types.Message, topic string) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, m := range turns {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	summary, err := s.generator.Complete(ctx, llm.SummarizationPrompt(b.String(), topic))
	if err != nil {
		return "", fmt.Errorf("memory: summarization failed: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", nil
	}

	s.append(ctx, Note{ID: uuid.NewString(), Topic: topic, Content: summary})
	return summary, nil
}

// RememberExplicit stores text verbatim under topic and returns the note ID.
func (s *SyntheticStore) RememberExplicit(ctx context.Context, text, topic string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("memory: nothing to remember")
	}
	note := Note{ID: uuid.NewString(), Topic: topic, Content: text}
	s.append(ctx, note)
	return note.ID, nil
}

// Relevant scores stored notes by keyword overlap with the query and returns
// the best max of them. Notes with no overlapping word are excluded.
func (s *SyntheticStore) Relevant(_ context.Context, query, topic string, max int) ([]Note, error) {
	if max <= 0 {
		max = 2
	}
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		note  Note
		score int
	}
	var candidates []scored
	for _, n := range s.notes {
		if topic != "" && n.Topic != topic {
			continue
		}
		overlap := 0
		noteWords := tokenize(n.Content)
		for w := range queryWords {
			if noteWords[w] {
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, scored{note: n, score: overlap})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]Note, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.note)
	}
	return out, nil
}

// append stores a note and persists the note list. Persistence failure is
// logged, not propagated: losing a note must not fail the caller.
func (s *SyntheticStore) append(ctx context.Context, note Note) {
	s.mu.Lock()
	s.notes = append(s.notes, note)
	data, err := json.MarshalIndent(s.notes, "", "  ")
	s.mu.Unlock()
	if err != nil {
		log.Printf("memory: failed to serialize notes: %v", err)
		return
	}
	if err := s.snapshots.Write(ctx, notesSnapshotName, data); err != nil {
		log.Printf("memory: failed to persist notes: %v", err)
	}
}

// tokenize lower-cases and splits text into a word set, dropping one- and
// two-letter words so stopwords like "je", "le", "to" don't count as overlap.
func tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r < 128
	}) {
		if len([]rune(w)) > 2 {
			out[w] = true
		}
	}
	return out
}

var _ SyntheticMemory = (*SyntheticStore)(nil)
