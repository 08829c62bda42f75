package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, []byte("test-secret"), cfg.JWT.Secret)
	assert.Equal(t, 30*time.Second, cfg.SSE.Keepalive)
	assert.Equal(t, 0, cfg.SSE.QueueLimit)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 2*time.Minute, cfg.Redis.UserCacheTTL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("SSE_KEEPALIVE", "5s")
	t.Setenv("WS_SEND_BUFFER", "32")
	t.Setenv("WS_FRAME_RATE", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.SSE.Keepalive)
	assert.Equal(t, 32, cfg.WebSocket.SendBuffer)
	assert.InDelta(t, 2.5, cfg.WebSocket.FrameRate, 0.0001)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
}
