package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souvenir-ai/souvenir/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	_ = os.Unsetenv("SOUVENIR_STORAGE_ENGINE")
	_ = os.Unsetenv("SOUVENIR_CACHE_TTL")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Storage.StorageEngine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, 5*time.Minute, cfg.Router.CacheTTL)
	assert.Equal(t, 100, cfg.Router.CacheMaxSize)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
	assert.Equal(t, 20, cfg.Conversation.MaxHistory)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SOUVENIR_STORAGE_ENGINE", "sqlite")
	t.Setenv("SOUVENIR_CACHE_TTL", "30s")
	t.Setenv("SOUVENIR_SHORT_WORD_THRESHOLD", "6")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, 30*time.Second, cfg.Router.CacheTTL)
	assert.Equal(t, 6, cfg.Router.ShortWordThreshold)
}

func TestLoadConfig_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("SOUVENIR_CACHE_MAX_SIZE", "not-a-number")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Router.CacheMaxSize,
		"unparseable env value must fall back to the default")
}

func TestLoadConfig_MemoryPrefixList(t *testing.T) {
	t.Setenv("SOUVENIR_MEMORY_PREFIXES", "souviens-toi, mémorise")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"souviens-toi", "mémorise"}, cfg.Router.MemoryPrefixes)
}

func TestLoadRewriteRules_EmptyPath(t *testing.T) {
	rules, err := config.LoadRewriteRules("")
	require.NoError(t, err)

	assert.NotNil(t, rules.Aliases)
	assert.NotNil(t, rules.TypeOverrides)
	assert.NotNil(t, rules.RelationSynonyms)
	assert.Empty(t, rules.Aliases)
}

func TestLoadRewriteRules_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := `
aliases:
  "la tour eiffel": "Tour Eiffel"
type_overrides:
  "tour eiffel": "place"
relation_synonyms:
  "vit_à": "habite_à"
merge_threshold: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	rules, err := config.LoadRewriteRules(path)
	require.NoError(t, err)

	assert.Equal(t, "Tour Eiffel", rules.Aliases["la tour eiffel"])
	assert.Equal(t, "place", rules.TypeOverrides["tour eiffel"])
	assert.Equal(t, "habite_à", rules.RelationSynonyms["vit_à"])
	assert.InDelta(t, 0.9, rules.MergeThreshold, 1e-9)
}

func TestLoadRewriteRules_MissingFile(t *testing.T) {
	_, err := config.LoadRewriteRules("/nonexistent/rules.yaml")
	assert.Error(t, err)
}
