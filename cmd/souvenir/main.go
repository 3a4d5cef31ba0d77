// cmd/souvenir is the entry point for the souvenir conversational memory
// core. It wires the snapshot store through the knowledge graph, builds the
// tiered generation path with its retry and circuit-breaker layers, and
// serves conversations over a websocket chat endpoint.
//
// Startup sequence:
//  1. Load configuration from environment variables.
//  2. Open the snapshot store (file or SQLite) and the rewrite-rules table.
//  3. Load the knowledge graph and the synthetic memory store.
//  4. Build the Ollama clients per tier and the retrying tiered generator.
//  5. Optionally connect the pgvector semantic searcher.
//  6. Serve the websocket chat endpoint, or run an interactive stdin
//     session with -chat.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/souvenir-ai/souvenir/internal/config"
	"github.com/souvenir-ai/souvenir/internal/conversation"
	"github.com/souvenir-ai/souvenir/internal/graph"
	"github.com/souvenir-ai/souvenir/internal/llm"
	"github.com/souvenir-ai/souvenir/internal/memory"
	"github.com/souvenir-ai/souvenir/internal/router"
	"github.com/souvenir-ai/souvenir/internal/server"
	"github.com/souvenir-ai/souvenir/internal/storage"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

func main() {
	interactive := flag.Bool("chat", false, "run an interactive stdin chat session instead of serving")
	flag.Parse()

	log.SetPrefix("souvenir: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		log.Fatalf("failed to create data directory %q: %v", cfg.Storage.DataPath, err)
	}

	snapshots, err := openSnapshots(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open snapshot store: %v", err)
	}
	defer snapshots.Close()

	rules, err := config.LoadRewriteRules(cfg.Storage.RewriteRules)
	if err != nil {
		log.Fatalf("failed to load rewrite rules: %v", err)
	}

	// Root context cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	g := graph.NewStore(ctx, snapshots, rules)
	stats := g.Stats()
	log.Printf("graph loaded: %d entities, %d relations", stats.EntityCount, stats.RelationCount)

	low := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL: cfg.LLM.OllamaURL,
		Model:   cfg.LLM.ModelLow,
		Timeout: cfg.LLM.Timeout,
	})
	medium := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL: cfg.LLM.OllamaURL,
		Model:   cfg.LLM.ModelMedium,
		Timeout: cfg.LLM.Timeout,
	})
	high := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL: cfg.LLM.OllamaURL,
		Model:   cfg.LLM.ModelHigh,
		Timeout: cfg.LLM.Timeout,
	})
	generator := llm.NewRetrying(llm.NewTiered(low, medium, high),
		cfg.LLM.MaxRetries, cfg.LLM.RetryDelay, cfg.LLM.CallRate)

	synthetic := memory.NewSyntheticStore(ctx, medium, snapshots)

	var semantic memory.SemanticSearcher
	if cfg.Semantic.PostgresDSN != "" {
		embedder := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL: cfg.LLM.OllamaURL,
			Model:   cfg.LLM.EmbeddingModel,
			Timeout: cfg.LLM.Timeout,
		})
		searcher, err := memory.NewPgVectorSearcher(cfg.Semantic.PostgresDSN, embedder)
		if err != nil {
			log.Fatalf("failed to connect semantic searcher: %v", err)
		}
		defer searcher.Close()
		semantic = searcher
	}

	r := router.New(g, synthetic, semantic, generator, cfg.Router)
	manager := conversation.NewManager(r, g, synthetic, low, cfg.Conversation.MaxHistory)

	if *interactive {
		runChat(ctx, manager)
	} else {
		addr, err := server.New(manager).Start(ctx, cfg.Server.ListenAddr)
		if err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
		log.Printf("chat endpoint at ws://%s/ws/chat", addr)
		<-ctx.Done()
	}

	log.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Printf("manager shutdown error: %v", err)
	}
	if err := g.Save(shutdownCtx); err != nil {
		log.Printf("final graph save error: %v", err)
	}
}

// openSnapshots selects the snapshot backend from configuration.
func openSnapshots(cfg config.StorageConfig) (storage.SnapshotStore, error) {
	switch cfg.StorageEngine {
	case "sqlite":
		store, err := storage.NewSQLiteStore(filepath.Join(cfg.DataPath, "souvenir.db"))
		if err != nil {
			return nil, err
		}
		store.MaxBackups = cfg.MaxBackups
		return store, nil
	case "", "file":
		store, err := storage.NewFileStore(cfg.DataPath, cfg.BackupPath)
		if err != nil {
			return nil, err
		}
		store.MaxBackups = cfg.MaxBackups
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.StorageEngine)
	}
}

// runChat reads turns from stdin and prints responses, one conversation for
// the whole session. Meant for local poking, not production.
func runChat(ctx context.Context, manager *conversation.Manager) {
	fmt.Println("souvenir chat (Ctrl-D to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	conversationID := ""
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := scanner.Text()
		if text == "" {
			continue
		}
		result := manager.HandleTurn(ctx, conversation.TurnRequest{
			Text:           text,
			ConversationID: conversationID,
			Mode:           types.ModeChat,
		})
		conversationID = result.ConversationID
		fmt.Println(result.Response)
		if ctx.Err() != nil {
			break
		}
	}
}
