package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, values map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := newViper(t, map[string]any{
		"url":     "http://mealie.local/api/",
		"api_key": "secret",
	})

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://mealie.local/api", cfg.MealieURL)
	assert.Equal(t, "nlp", cfg.ParseMethod)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.InDelta(t, 0.85, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, ".ai", cfg.SessionDir)

	policy := cfg.Retry.Policy()
	assert.Equal(t, 4*time.Second, policy.Backoff(2))
}

func TestLoad_ProjectDir(t *testing.T) {
	v := newViper(t, map[string]any{
		"url":         "http://mealie.local/api",
		"api_key":     "secret",
		"project.dir": "/srv/recipes",
	})

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/recipes", ".ai"), cfg.SessionDir)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		values  map[string]any
		name    string
		wantMsg string
	}{
		{
			name:    "missing url",
			values:  map[string]any{"api_key": "k"},
			wantMsg: "MEALIE_URL is not set",
		},
		{
			name:    "bad url",
			values:  map[string]any{"url": "not a url", "api_key": "k"},
			wantMsg: "not a valid URL",
		},
		{
			name:    "missing key",
			values:  map[string]any{"url": "http://x/api"},
			wantMsg: "MEALIE_API_KEY is not set",
		},
		{
			name:    "concurrency too high",
			values:  map[string]any{"url": "http://x/api", "api_key": "k", "parse.concurrency": 33},
			wantMsg: "concurrency must be between 1 and 32",
		},
		{
			name:    "concurrency zero",
			values:  map[string]any{"url": "http://x/api", "api_key": "k", "parse.concurrency": 0},
			wantMsg: "concurrency must be between 1 and 32",
		},
		{
			name:    "unknown method",
			values:  map[string]any{"url": "http://x/api", "api_key": "k", "parse.method": "regex"},
			wantMsg: "parse method must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.values))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MEALIE_TEST_DOTENV_KEY=from-file\n"), 0600))
	t.Cleanup(func() { _ = os.Unsetenv("MEALIE_TEST_DOTENV_KEY") })

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("MEALIE_TEST_DOTENV_KEY"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("MEALIE_TEST_DIR", "/srv/data")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "x", "y"), ExpandPath("~/x/y"))
	assert.Equal(t, "/srv/data/db", ExpandPath("$MEALIE_TEST_DIR/db"))
	assert.Equal(t, "rel/path", ExpandPath("rel/path"))
}

func TestProjectPath(t *testing.T) {
	assert.Equal(t, "/abs/.ai", ProjectPath("/project", "/abs/.ai"))
	assert.Equal(t, filepath.Join("/project", ".ai"), ProjectPath("/project", ".ai"))
}
