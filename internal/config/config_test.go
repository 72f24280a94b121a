package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "REDIS_ADDR", "REDIS_DB", "RELAY_REQUIRE_ROOM", "DATABASE_URL", "EXECUTOR_TIMEOUT", "ARK_API_KEY", "Model"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Relay.UseRedis())
	assert.False(t, cfg.Relay.RequireRoom)
	assert.Empty(t, cfg.Store.DatabaseURL)
	assert.Equal(t, 10*time.Second, cfg.Executor.Timeout)
	assert.False(t, cfg.AI.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RELAY_REQUIRE_ROOM", "true")
	t.Setenv("DATABASE_URL", "postgres://localhost/coderoom")
	t.Setenv("EXECUTOR_TIMEOUT", "1500ms")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.Relay.UseRedis())
	assert.Equal(t, 2, cfg.Relay.RedisDB)
	assert.True(t, cfg.Relay.RequireRoom)
	assert.Equal(t, "postgres://localhost/coderoom", cfg.Store.DatabaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Executor.Timeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"PORT":               "80 80",
		"RELAY_REQUIRE_ROOM": "maybe",
		"REDIS_DB":           "-1",
		"EXECUTOR_TIMEOUT":   "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestExecutorTimeoutSeconds(t *testing.T) {
	t.Setenv("EXECUTOR_TIMEOUT", "3")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Executor.Timeout)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("COLLAB_RELAY_URL", "https://collab.example.com")
	t.Setenv("COLLAB_COMPLETION_URL", "")
	t.Setenv("COLLAB_USERNAME", " ann ")
	t.Setenv("COLLAB_DEBOUNCE_MS", "250")
	t.Setenv("COLLAB_REMOTE_CARET", "LOCAL")
	t.Setenv("COLLAB_CHAR_WIDTH", "7.5")
	t.Setenv("COLLAB_PADDING_LEFT", "10")
	t.Setenv("COLLAB_TAB_SIZE", "")

	cfg, err := LoadClient()

	require.NoError(t, err)
	assert.Equal(t, "https://collab.example.com", cfg.CompletionURL)
	assert.Equal(t, "ann", cfg.Username)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, "local", cfg.RemoteCaret)
	assert.Equal(t, 7.5, cfg.CharWidth)
	assert.Equal(t, 10.0, cfg.PaddingLeft)
	assert.Equal(t, 20.0, cfg.LineHeight)
	assert.Equal(t, 4, cfg.TabSize)
}

func TestLoadClientRejectsNegativeMetric(t *testing.T) {
	t.Setenv("COLLAB_LINE_HEIGHT", "-3")

	_, err := LoadClient()

	assert.Error(t, err)
}
