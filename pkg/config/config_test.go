package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "mem", cfg.Backend)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, "chat-media", cfg.StorageBucket)
	require.Equal(t, 2*time.Second, cfg.TypingDebounce)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CONVOSYNC_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TYPING_STALENESS", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Backend)
	require.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	require.Equal(t, 5*time.Second, cfg.TypingStaleness)
}
