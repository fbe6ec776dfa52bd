package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Run from a directory without a .env file.
	chdirForTest(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.False(t, cfg.TLSEnabled())
	assert.Equal(t, 100, cfg.RateLimitMessages)
	assert.Equal(t, time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 24*time.Hour, cfg.RoomTTL)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.MaxMessageSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Zero(t, cfg.MaxRooms)
	assert.Zero(t, cfg.MaxClientsPerRoom)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	chdirForTest(t, t.TempDir())
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_MESSAGES", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "2s")
	t.Setenv("ROOM_TTL", "30m")
	t.Setenv("CLEANUP_INTERVAL", "1m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_ROOMS", "1000")
	t.Setenv("MAX_CLIENTS_PER_ROOM", "20")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, 5, cfg.RateLimitMessages)
	assert.Equal(t, 2*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 30*time.Minute, cfg.RoomTTL)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1000, cfg.MaxRooms)
	assert.Equal(t, 20, cfg.MaxClientsPerRoom)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad port", env: map[string]string{"PORT": "70000"}, want: "PORT"},
		{name: "unparsable duration", env: map[string]string{"ROOM_TTL": "soon"}, want: "failed to parse config"},
		{name: "zero rate limit", env: map[string]string{"RATE_LIMIT_MESSAGES": "0"}, want: "RATE_LIMIT_MESSAGES"},
		{name: "negative max rooms", env: map[string]string{"MAX_ROOMS": "-1"}, want: "MAX_ROOMS"},
		{name: "negative room cap", env: map[string]string{"MAX_CLIENTS_PER_ROOM": "-1"}, want: "MAX_CLIENTS_PER_ROOM"},
		{name: "log level", env: map[string]string{"LOG_LEVEL": "verbose"}, want: "LOG_LEVEL"},
		{name: "log format", env: map[string]string{"LOG_FORMAT": "xml"}, want: "LOG_FORMAT"},
		{name: "half tls", env: map[string]string{"TLS_CERT": "cert.pem"}, want: "TLS_CERT and TLS_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirForTest(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_TLSEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.TLSCert, cfg.TLSKey = "cert.pem", "key.pem"
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.TLSEnabled())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Str("room_id", "doc1").Msg("visible")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "doc1", entry["room_id"])
	assert.Equal(t, "room-relay", entry["service"])
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", "json", &buf)

	assert.False(t, recoverPanic(logger, nil, "test"))
	assert.Zero(t, buf.Len())

	assert.True(t, recoverPanic(logger, "boom", "test"))
	assert.Contains(t, buf.String(), "stack_trace")
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
