package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets each key for the duration of the test, restoring its
// prior value (if any) afterward. Unlike t.Setenv("", ...), this leaves
// the key genuinely absent so godotenv.Load is still free to set it
// from a .env file.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, existed := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if existed {
				_ = os.Setenv(k, prev)
			}
		})
	}
}

func writeEnvFile(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(contents), 0o644))
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearEnv(t, "REQUESTS_PER_MINUTE", "MAX_CONCURRENT", "CACHE_DIR")
	t.Setenv("API_KEY", "key-123")
	t.Setenv("MODEL_STAGE1", "model-a")
	t.Setenv("MODEL_STAGE2", "model-b")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.RequestsPerMinute)
	assert.Equal(t, 50, cfg.MaxConcurrent)
	assert.Equal(t, "./.cache", cfg.CacheDir)
	assert.Equal(t, "key-123", cfg.APIKey)
}

func TestLoad_MissingAPIKeyFailsValidation(t *testing.T) {
	clearEnv(t, "API_KEY")
	t.Setenv("MODEL_STAGE1", "model-a")
	t.Setenv("MODEL_STAGE2", "model-b")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY is required")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Config{
		MaxConcurrent:            0,
		BatchSize:                0,
		CheckpointInterval:       0,
		RetryMaxAttempts:         0,
		RetryInitialDelaySeconds: 0,
		CircuitFailureThreshold:  0,
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "API_KEY is required")
	assert.Contains(t, msg, "MAX_CONCURRENT must be at least 1")
	assert.Contains(t, msg, "BATCH_SIZE must be at least 1")
	assert.Contains(t, msg, "MODEL_STAGE1 is required")
}

func TestLoad_ReadsDotEnvFile(t *testing.T) {
	clearEnv(t, "API_KEY", "MODEL_STAGE1", "MODEL_STAGE2")
	dir := t.TempDir()
	writeEnvFile(t, dir, "API_KEY=from-dotenv\nMODEL_STAGE1=m1\nMODEL_STAGE2=m2\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
}
