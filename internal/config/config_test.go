package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_PATH", "PORT", "LOG_LEVEL", "LOG_FORMAT", "HOST_USER", "HOST_PASS", "HOST_KEY",
	"NATS_URL", "NATS_SUBJECT", "EXPORT_FILE", "ALLOWED_ORIGINS", "EVICT_GRACE", "MAX_ROOMS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "console", c.Log.Format)
	assert.Equal(t, 30*time.Second, c.Rooms.EvictGrace)
	assert.Equal(t, 10000, c.Rooms.MaxRooms)
	assert.Equal(t, []string{"*"}, c.CORS.AllowedOrigins)
	assert.Equal(t, "buzzer.rooms", c.NATS.Subject)
	assert.False(t, c.HostAuth())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("EVICT_GRACE", "0")
	t.Setenv("MAX_ROOMS", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HOST_USER", "host")
	t.Setenv("HOST_PASS", "secret")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", c.Port)
	assert.Equal(t, time.Duration(0), c.Rooms.EvictGrace)
	assert.Equal(t, 5, c.Rooms.MaxRooms)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORS.AllowedOrigins)
	assert.True(t, c.HostAuth())
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
log:
  level: debug
  format: json
rooms:
  evictGrace: 2m
  maxRooms: 50
nats:
  url: nats://localhost:4222
export:
  file: ./results.txt
`), 0644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "9100")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", c.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, 2*time.Minute, c.Rooms.EvictGrace)
	assert.Equal(t, 50, c.Rooms.MaxRooms)
	assert.Equal(t, "nats://localhost:4222", c.NATS.URL)
	assert.Equal(t, "./results.txt", c.Export.File)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non numeric port", map[string]string{"PORT": "http"}},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"user without pass", map[string]string{"HOST_USER": "host"}},
		{"negative max rooms", map[string]string{"MAX_ROOMS": "-1"}},
		{"grace without unit", map[string]string{"EVICT_GRACE": "30"}},
		{"negative grace", map[string]string{"EVICT_GRACE": "-5s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
