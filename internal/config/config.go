// Package config provides configuration management for Souvenir.
// It loads settings from environment variables with the SOUVENIR_ prefix
// and provides sensible defaults for all configuration options.
//
// Graph rewrite rules (name aliases, type overrides, relation synonyms) are
// loaded separately from a YAML file via LoadRewriteRules since they are
// tables, not scalar settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Souvenir application.
type Config struct {
	Storage      StorageConfig
	LLM          LLMConfig
	Router       RouterConfig
	Conversation ConversationConfig
	Semantic     SemanticConfig
	Server       ServerConfig
}

// StorageConfig contains graph persistence configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: file, sqlite (default: file)
	DataPath      string // Path to data directory (default: ./data)
	BackupPath    string // Path to snapshot backup directory (default: ./data/backups)
	RewriteRules  string // Path to YAML rewrite-rules file; empty disables table loading
	MaxBackups    int    // Retained backups per snapshot (default: 10)
}

// LLMConfig contains generation-service configuration.
type LLMConfig struct {
	OllamaURL      string        // Ollama API URL (default: http://localhost:11434)
	ModelLow       string        // Model for the "low" tier (default: qwen2.5:1.5b)
	ModelMedium    string        // Model for the "medium" tier (default: qwen2.5:7b)
	ModelHigh      string        // Model for the "high" tier (default: qwen2.5:14b)
	EmbeddingModel string        // Embedding model name (default: nomic-embed-text)
	MaxRetries     int           // Generation retries before the apology fallback (default: 2)
	RetryDelay     time.Duration // Delay between generation retries (default: 500ms)
	Timeout        time.Duration // Per-call generation deadline (default: 30s)
	CallRate       float64       // Generation calls per second; 0 disables limiting (default: 5)
}

// RouterConfig contains context-router tuning.
type RouterConfig struct {
	CacheTTL           time.Duration // Context cache entry lifetime (default: 5m)
	CacheMaxSize       int           // Context cache entry cap (default: 100)
	ShortWordThreshold int           // Word count at or below which a request is "short" (default: 4)
	MemoryPrefixes     []string      // Memory-command prefixes (default: souviens-toi / rappelle-toi / remember / note)
	PreferenceKeywords []string      // Keywords gating semantic-search enrichment
	EnrichmentTimeout  time.Duration // Per-source enrichment deadline (default: 5s)
	SemanticMinScore   float64       // Minimum similarity for semantic results (default: 0.55)
}

// ConversationConfig contains conversation-manager tuning.
type ConversationConfig struct {
	MaxHistory int // Retained messages per conversation before rotation (default: 20)
}

// SemanticConfig contains the optional pgvector semantic-search backend.
type SemanticConfig struct {
	PostgresDSN string // lib/pq connection string; empty disables semantic search
}

// ServerConfig contains the websocket chat server settings.
type ServerConfig struct {
	ListenAddr string // HTTP listen address (default: 127.0.0.1:8787)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the SOUVENIR_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("SOUVENIR_STORAGE_ENGINE", "file"),
			DataPath:      getEnv("SOUVENIR_DATA_PATH", "./data"),
			BackupPath:    getEnv("SOUVENIR_BACKUP_PATH", "./data/backups"),
			RewriteRules:  getEnv("SOUVENIR_REWRITE_RULES", ""),
			MaxBackups:    getEnvInt("SOUVENIR_MAX_BACKUPS", 10),
		},
		LLM: LLMConfig{
			OllamaURL:      getEnv("SOUVENIR_OLLAMA_URL", "http://localhost:11434"),
			ModelLow:       getEnv("SOUVENIR_MODEL_LOW", "qwen2.5:1.5b"),
			ModelMedium:    getEnv("SOUVENIR_MODEL_MEDIUM", "qwen2.5:7b"),
			ModelHigh:      getEnv("SOUVENIR_MODEL_HIGH", "qwen2.5:14b"),
			EmbeddingModel: getEnv("SOUVENIR_EMBEDDING_MODEL", "nomic-embed-text"),
			MaxRetries:     getEnvInt("SOUVENIR_LLM_MAX_RETRIES", 2),
			RetryDelay:     getEnvDuration("SOUVENIR_LLM_RETRY_DELAY", 500*time.Millisecond),
			Timeout:        getEnvDuration("SOUVENIR_LLM_TIMEOUT", 30*time.Second),
			CallRate:       getEnvFloat("SOUVENIR_LLM_CALL_RATE", 5),
		},
		Router: RouterConfig{
			CacheTTL:           getEnvDuration("SOUVENIR_CACHE_TTL", 5*time.Minute),
			CacheMaxSize:       getEnvInt("SOUVENIR_CACHE_MAX_SIZE", 100),
			ShortWordThreshold: getEnvInt("SOUVENIR_SHORT_WORD_THRESHOLD", 4),
			MemoryPrefixes:     getEnvList("SOUVENIR_MEMORY_PREFIXES", defaultMemoryPrefixes),
			PreferenceKeywords: getEnvList("SOUVENIR_PREFERENCE_KEYWORDS", defaultPreferenceKeywords),
			EnrichmentTimeout:  getEnvDuration("SOUVENIR_ENRICHMENT_TIMEOUT", 5*time.Second),
			SemanticMinScore:   getEnvFloat("SOUVENIR_SEMANTIC_MIN_SCORE", 0.55),
		},
		Conversation: ConversationConfig{
			MaxHistory: getEnvInt("SOUVENIR_MAX_HISTORY", 20),
		},
		Semantic: SemanticConfig{
			PostgresDSN: getEnv("SOUVENIR_POSTGRES_DSN", ""),
		},
		Server: ServerConfig{
			ListenAddr: getEnv("SOUVENIR_LISTEN_ADDR", "127.0.0.1:8787"),
		},
	}
	return cfg, nil
}

// defaultMemoryPrefixes are the phrases that turn a request into an explicit
// memory command. Both French and English forms are recognized out of the box.
var defaultMemoryPrefixes = []string{
	"souviens-toi",
	"rappelle-toi",
	"remember",
	"note que",
}

// defaultPreferenceKeywords gate semantic-search enrichment to requests that
// are plausibly about the user's tastes and habits.
var defaultPreferenceKeywords = []string{
	"aime", "adore", "déteste", "préfère", "préféré", "habitude",
	"like", "love", "hate", "prefer", "favorite", "usually",
}

// RewriteRules are the postprocessor's configurable tables. Keys are matched
// case-insensitively against normalized names and labels.
type RewriteRules struct {
	// Aliases maps raw entity names to their canonical form
	// (e.g. "la tour eiffel" → "Tour Eiffel").
	Aliases map[string]string `yaml:"aliases"`

	// TypeOverrides maps a canonical name to a corrected entity type.
	TypeOverrides map[string]string `yaml:"type_overrides"`

	// RelationSynonyms maps relation labels to their canonical label
	// (e.g. "vit_à" → "habite_à").
	RelationSynonyms map[string]string `yaml:"relation_synonyms"`

	// MergeThreshold is the similarity ratio at or above which two entity
	// names are considered the same entity. Zero means the default (0.92).
	MergeThreshold float64 `yaml:"merge_threshold"`
}

// LoadRewriteRules reads the YAML rewrite-rules file at path. A missing path
// argument returns empty rules rather than an error so the postprocessor can
// always run.
func LoadRewriteRules(path string) (*RewriteRules, error) {
	rules := &RewriteRules{
		Aliases:          make(map[string]string),
		TypeOverrides:    make(map[string]string),
		RelationSynonyms: make(map[string]string),
	}
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read rewrite rules %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("config: failed to parse rewrite rules %s: %w", path, err)
	}
	if rules.Aliases == nil {
		rules.Aliases = make(map[string]string)
	}
	if rules.TypeOverrides == nil {
		rules.TypeOverrides = make(map[string]string)
	}
	if rules.RelationSynonyms == nil {
		rules.RelationSynonyms = make(map[string]string)
	}
	return rules, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "30s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated list environment variable or returns
// a default value. Entries are trimmed; empty entries are dropped.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
