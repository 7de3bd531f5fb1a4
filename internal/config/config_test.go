package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Read()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "authToken", cfg.Auth.CookieName)
	assert.Equal(t, 72*time.Hour, cfg.Auth.TokenExpire)
	assert.Equal(t, "gpt-4o-mini", cfg.Narrator.Model)
	assert.Equal(t, "en-GB-Wavenet-B", cfg.Speech.Voice)
	assert.Equal(t, "MP3", cfg.Speech.Encoding)
	assert.Equal(t, 500*time.Millisecond, cfg.Historian.FlushDelay)
	assert.Greater(t, cfg.Server.WriteTimeout, cfg.Narrator.Timeout+cfg.Speech.Timeout)
}

func TestReadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AUTH_TOKEN_EXPIRE", "30m")
	t.Setenv("NARRATOR_MODEL", "gpt-4o")

	cfg, err := Read()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenExpire)
	assert.Equal(t, "gpt-4o", cfg.Narrator.Model)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "firestore")

	_, err := Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}

func TestValidateWriteTimeoutCoversVendorCalls(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_WRITE_TIMEOUT", "60s")

	_, err := Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.write_timeout")

	// without speech only the narrator counts
	t.Setenv("SPEECH_ENABLED", "false")
	cfg, err := Read()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.VendorBudget())

	// zero disables the server write deadline
	t.Setenv("SPEECH_ENABLED", "true")
	t.Setenv("SERVER_WRITE_TIMEOUT", "0s")
	_, err = Read()
	assert.NoError(t, err)
}

func TestPostgresURL(t *testing.T) {
	cfg := Config{Postgres: PostgresConfig{
		Host: "db", Port: "5432", User: "realms", Password: "p@ss", Database: "realms", SSLMode: "disable",
	}}
	assert.Equal(t, "postgres://realms:p%40ss@db:5432/realms?sslmode=disable", cfg.PostgresURL())
}

func TestOriginHosts(t *testing.T) {
	s := ServerConfig{AllowedOrigins: []string{"http://localhost:3000", "https://realms.example.com", "*.example.org"}}
	assert.Equal(t, []string{"localhost:3000", "realms.example.com", "*.example.org"}, s.OriginHosts())
}
