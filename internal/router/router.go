// Package router implements the context router: for every user utterance it
// classifies the request without any network call, selectively pulls context
// from the symbolic graph, synthetic summaries, and semantic search, then
// performs exactly one generation call with the assembled prompt.
package router

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/souvenir-ai/souvenir/internal/config"
	"github.com/souvenir-ai/souvenir/internal/graph"
	"github.com/souvenir-ai/souvenir/internal/llm"
	"github.com/souvenir-ai/souvenir/internal/memory"
	"github.com/souvenir-ai/souvenir/internal/stream"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// memoryAck is the canned acknowledgement for explicit memory commands; no
// generation call is made for those.
const memoryAck = "C'est noté, je m'en souviendrai."

// promptPreamble is the fixed instruction block every generated prompt
// starts with.
const promptPreamble = `Tu es un assistant personnel attentif. Réponds dans la langue de l'utilisateur.
Appuie-toi sur le contexte fourni; s'il est vide ou insuffisant, dis que tu ne sais pas plutôt que d'inventer.`

// chatSuffix and voiceSuffix are the mode-specific closing instructions.
const (
	chatSuffix  = "Réponds de façon naturelle et complète."
	voiceSuffix = "Réponds en une ou deux phrases courtes, adaptées à la synthèse vocale."
)

// maxSyntheticNotes and maxSemanticResults bound the per-source enrichment
// contributions.
const (
	maxSyntheticNotes  = 2
	maxSemanticResults = 2
	maxSymbolicResults = 3
)

// Request is one routing request.
type Request struct {
	Text           string
	ConversationID string
	UserID         string
	Mode           types.Mode
	Sink           stream.Sink
}

// Router assembles context and triggers generation. Construct with New; all
// methods are safe for concurrent use.
type Router struct {
	graph     *graph.Store
	synthetic memory.SyntheticMemory
	semantic  memory.SemanticSearcher
	generator llm.TieredGenerator
	cache     *contextCache
	cfg       config.RouterConfig

	// postHook runs asynchronously after each response, an extension point
	// for follow-up work. Never blocks the response path.
	postHook func(req Request, response string)
}

// New creates a router. semantic may be nil when no vector backend is
// configured; that enrichment source then never contributes.
func New(g *graph.Store, synthetic memory.SyntheticMemory, semantic memory.SemanticSearcher, generator llm.TieredGenerator, cfg config.RouterConfig) *Router {
	return &Router{
		graph:     g,
		synthetic: synthetic,
		semantic:  semantic,
		generator: generator,
		cache:     newContextCache(cfg.CacheTTL, cfg.CacheMaxSize),
		cfg:       cfg,
	}
}

// SetPostHook installs the asynchronous post-response hook.
func (r *Router) SetPostHook(hook func(req Request, response string)) {
	r.postHook = hook
}

// Route processes one request end to end and returns the response with turn
// metadata. Enrichment failures degrade to missing context; generation
// failures degrade to an apology. Only genuinely unexpected conditions set
// the Error field, and even then Response stays usable.
func (r *Router) Route(ctx context.Context, req Request) types.RouteResult {
	now := time.Now()
	result := types.RouteResult{
		ConversationID: req.ConversationID,
		Timestamp:      now.UTC().Format(time.RFC3339),
		Mode:           string(req.Mode),
	}

	cls := classify(req.Text, r.cfg.MemoryPrefixes, r.cfg.ShortWordThreshold)

	// Explicit memory command: store verbatim, acknowledge, skip enrichment
	// and generation entirely.
	if cls.memoryCommand {
		if _, err := r.synthetic.RememberExplicit(ctx, cls.payload, "explicit"); err != nil {
			log.Printf("router: explicit memory store failed: %v", err)
			result.Response = memoryAck
			result.Error = "memory store failed"
			return result
		}
		result.Response = memoryAck
		return result
	}

	contextBlock := r.gatherContext(ctx, req.Text, cls, now)
	prompt := assemblePrompt(req.Text, contextBlock, req.Mode)
	tier := pickTier(req.Mode, cls)

	response, err := r.generator.GenerateTier(ctx, prompt, tier, req.Sink)
	if err != nil {
		// The retrying generator normally absorbs failures; anything that
		// reaches here is unexpected.
		log.Printf("router: generation failed unexpectedly: %v", err)
		result.Response = llm.ApologyResponse
		result.Error = err.Error()
		return result
	}
	result.Response = response

	if hook := r.postHook; hook != nil {
		go hook(req, response)
	}
	return result
}

// gatherContext returns the combined enrichment block for a request, using
// the cache when a fresh entry exists. Each source sits behind its own
// failure boundary: a failing source contributes nothing and the others
// still run.
func (r *Router) gatherContext(ctx context.Context, text string, cls classification, now time.Time) string {
	key := cacheKey(text)
	if cached, ok := r.cache.get(key, now); ok {
		return cached
	}

	var parts []string

	// Symbolic graph lookup, only for question-shaped requests. Purely
	// in-memory, but a panic here must not kill the turn either.
	if cls.question {
		if symbolic := r.symbolicContext(text); symbolic != "" {
			parts = append(parts, symbolic)
		}
	}

	// Synthetic summaries, skipped for short requests.
	if !cls.short {
		if synthetic := r.syntheticContext(ctx, text); synthetic != "" {
			parts = append(parts, synthetic)
		}
	}

	// Semantic search, only for question-shaped requests that mention a
	// personal-preference keyword.
	if cls.question && r.mentionsPreference(text) {
		if semantic := r.semanticContext(ctx, text); semantic != "" {
			parts = append(parts, semantic)
		}
	}

	combined := strings.Join(parts, "\n")
	r.cache.put(key, combined, now)
	return combined
}

func (r *Router) symbolicContext(text string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("router: symbolic lookup panicked: %v", rec)
			out = ""
		}
	}()
	return r.graph.GetContextForQuery(text, maxSymbolicResults)
}

func (r *Router) syntheticContext(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, r.enrichmentTimeout())
	defer cancel()

	notes, err := r.synthetic.Relevant(ctx, text, "", maxSyntheticNotes)
	if err != nil {
		log.Printf("router: synthetic lookup failed: %v", err)
		return ""
	}
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "Souvenir: %s\n", n.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) semanticContext(ctx context.Context, text string) string {
	if r.semantic == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, r.enrichmentTimeout())
	defer cancel()

	results, err := r.semantic.Search(ctx, text, maxSemanticResults, r.cfg.SemanticMinScore)
	if err != nil {
		log.Printf("router: semantic search failed: %v", err)
		return ""
	}
	var b strings.Builder
	for _, res := range results {
		fmt.Fprintf(&b, "Archive: %s\n", res.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) enrichmentTimeout() time.Duration {
	if r.cfg.EnrichmentTimeout > 0 {
		return r.cfg.EnrichmentTimeout
	}
	return 5 * time.Second
}

// mentionsPreference reports whether the text contains one of the configured
// personal-preference keywords.
func (r *Router) mentionsPreference(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range r.cfg.PreferenceKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// assemblePrompt builds the single prompt sent to the generation service:
// fixed preamble, request, context block when non-empty, and the
// mode-specific instruction suffix.
func assemblePrompt(text, contextBlock string, mode types.Mode) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n")
	if contextBlock != "" {
		b.WriteString("Contexte:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}
	b.WriteString("Utilisateur: ")
	b.WriteString(text)
	b.WriteString("\n\n")
	if mode == types.ModeVoice {
		b.WriteString(voiceSuffix)
	} else {
		b.WriteString(chatSuffix)
	}
	return b.String()
}

// pickTier selects the generation complexity: low for voice mode or short
// requests, medium otherwise.
func pickTier(mode types.Mode, cls classification) types.Tier {
	if mode == types.ModeVoice || cls.short {
		return types.TierLow
	}
	return types.TierMedium
}
