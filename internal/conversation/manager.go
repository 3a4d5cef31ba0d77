// Package conversation glues one conversation turn together: it fires the
// asynchronous, lock-guarded extraction task that feeds the knowledge graph,
// runs the synchronous router call that produces the response, and rotates
// conversation history through the synthetic-memory summarizer.
package conversation

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/souvenir-ai/souvenir/internal/graph"
	"github.com/souvenir-ai/souvenir/internal/llm"
	"github.com/souvenir-ai/souvenir/internal/memory"
	"github.com/souvenir-ai/souvenir/internal/router"
	"github.com/souvenir-ai/souvenir/internal/stream"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// extractionTimeout bounds one background extraction task. Extraction uses
// its own deadline because it outlives the request context on purpose.
const extractionTimeout = 60 * time.Second

// TurnRequest is one inbound user utterance.
type TurnRequest struct {
	Text           string
	ConversationID string
	UserID         string

	// MessageID deduplicates extraction when multiple asynchronous paths
	// observe the same message. Optional; a hash of Text is used when empty.
	MessageID string

	Mode types.Mode
	Sink stream.Sink
}

// Manager owns per-conversation history, the extraction guard, and the
// background task lifecycle. All methods are safe for concurrent use.
type Manager struct {
	router    *router.Router
	graph     *graph.Store
	synthetic memory.SyntheticMemory
	extractor llm.TextGenerator

	maxHistory int

	mu        sync.Mutex
	histories map[string][]types.Message

	guard *extractionGuard
	tasks sync.WaitGroup
}

// NewManager creates the conversation manager. extractor is the generator
// used for entity/relation extraction; it is typically a cheaper model than
// the response path.
func NewManager(r *router.Router, g *graph.Store, synthetic memory.SyntheticMemory, extractor llm.TextGenerator, maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &Manager{
		router:     r,
		graph:      g,
		synthetic:  synthetic,
		extractor:  extractor,
		maxHistory: maxHistory,
		histories:  make(map[string][]types.Message),
		guard:      newExtractionGuard(),
	}
}

// HandleTurn processes one user utterance: it fires the guarded background
// extraction task, routes the request synchronously, records both turns in
// history, and rotates old history out through summarization. The response
// is never delayed by the background work.
func (m *Manager) HandleTurn(ctx context.Context, req TurnRequest) types.RouteResult {
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	m.triggerExtraction(req)

	result := m.router.Route(ctx, router.Request{
		Text:           req.Text,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Mode:           req.Mode,
		Sink:           req.Sink,
	})

	now := time.Now()
	m.appendHistory(req.ConversationID,
		types.Message{ID: m.guard.token(req.MessageID, req.Text), Role: types.RoleUser, Content: req.Text, Timestamp: now},
		types.Message{ID: uuid.NewString(), Role: types.RoleAssistant, Content: result.Response, Timestamp: now},
	)

	return result
}

// triggerExtraction launches the guarded extraction task for a message.
// A message whose token is already in flight is skipped entirely.
func (m *Manager) triggerExtraction(req TurnRequest) {
	token := m.guard.token(req.MessageID, req.Text)
	if !m.guard.tryAcquire(token) {
		log.Printf("conversation: extraction already in flight for %s, skipping", token)
		return
	}

	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		defer m.guard.release(token)

		ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
		defer cancel()
		m.extractToGraph(ctx, req.Text)
	}()
}

// extractToGraph runs the two-call extraction pipeline (entities, then
// relations between them) and writes the results into the knowledge graph.
// Every failure is logged and swallowed: extraction never surfaces to the
// user and a failed turn simply contributes nothing.
func (m *Manager) extractToGraph(ctx context.Context, text string) {
	raw, err := m.extractor.Complete(ctx, llm.EntityExtractionPrompt(text))
	if err != nil {
		log.Printf("conversation: entity extraction failed: %v", err)
		return
	}
	entities, err := llm.ParseEntityResponse(raw)
	if err != nil {
		log.Printf("conversation: entity extraction unparseable: %v", err)
		return
	}
	if len(entities.Entities) == 0 {
		return
	}

	names := make([]string, 0, len(entities.Entities))
	for _, e := range entities.Entities {
		m.graph.AddEntity(ctx, e.Name, e.Type, graph.EntityOptions{
			Attributes: e.Attributes,
			Confidence: &e.Confidence,
		})
		names = append(names, e.Name)
	}

	raw, err = m.extractor.Complete(ctx, llm.RelationExtractionPrompt(text, names))
	if err != nil {
		log.Printf("conversation: relation extraction failed: %v", err)
		return
	}
	relations, err := llm.ParseRelationResponse(raw)
	if err != nil {
		log.Printf("conversation: relation extraction unparseable: %v", err)
		return
	}
	for _, r := range relations.Relations {
		sourceID := m.graph.FindEntityByName(r.Source)
		targetID := m.graph.FindEntityByName(r.Target)
		if sourceID == "" || targetID == "" {
			log.Printf("conversation: dropping relation %s -%s-> %s (unknown endpoint)", r.Source, r.Relation, r.Target)
			continue
		}
		if !m.graph.AddRelation(ctx, sourceID, r.Relation, targetID, graph.RelationOptions{Confidence: &r.Confidence}) {
			log.Printf("conversation: relation %s -%s-> %s rejected", sourceID, r.Relation, targetID)
		}
	}
}

// appendHistory records messages and rotates the conversation when it grows
// past maxHistory: the oldest excess turns are handed to the summarizer
// asynchronously and dropped from the retained list immediately. The
// summarization may race the truncation; it must never block it.
func (m *Manager) appendHistory(conversationID string, msgs ...types.Message) {
	m.mu.Lock()
	history := append(m.histories[conversationID], msgs...)

	var excess []types.Message
	if len(history) > m.maxHistory {
		cut := len(history) - m.maxHistory
		excess = make([]types.Message, cut)
		copy(excess, history[:cut])
		history = history[cut:]
	}
	m.histories[conversationID] = history
	m.mu.Unlock()

	if len(excess) == 0 {
		return
	}
	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
		defer cancel()
		if _, err := m.synthetic.Summarize(ctx, excess, conversationID); err != nil {
			log.Printf("conversation: history summarization failed: %v", err)
		}
	}()
}

// History returns a copy of the retained messages for a conversation.
func (m *Manager) History(conversationID string) []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.histories[conversationID]
	out := make([]types.Message, len(history))
	copy(out, history)
	return out
}

// Shutdown waits for in-flight background tasks to finish, giving up when
// the context expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
