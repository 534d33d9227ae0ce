package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("FEEDBACK_STORE", "")
	t.Setenv("LIVEKIT_URL", "")
	t.Setenv("CALL_MAX_DURATION", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverPostgREST, cfg.Storage.Driver)
	assert.Equal(t, "feedback", cfg.Storage.Table)
	assert.Equal(t, "tara", cfg.Storage.Agent)
	assert.Equal(t, 15*time.Minute, cfg.LiveKit.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.Call.MaxDuration)
	assert.Greater(t, cfg.Call.FailureResetDelay, cfg.Call.ConfirmationDelay)
	assert.Empty(t, cfg.LiveKit.URL)
}

func TestLoadSupabaseFallbackNames(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_KEY", "")
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("NEXT_PUBLIC_SUPABASE_KEY", "anon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co", cfg.Storage.SupabaseURL)
	assert.True(t, cfg.Storage.PostgRESTReady())
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("FEEDBACK_STORE", "mongo")

	_, err := Load()
	require.Error(t, err)
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("CALL_MAX_DURATION", "90")
	d, err := parseDurationEnv("CALL_MAX_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	t.Setenv("CALL_MAX_DURATION", "2m")
	d, err = parseDurationEnv("CALL_MAX_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	t.Setenv("CALL_MAX_DURATION", "-3s")
	_, err = parseDurationEnv("CALL_MAX_DURATION", time.Minute)
	require.Error(t, err)
}

func TestLoadRejectsInvertedResetDelays(t *testing.T) {
	t.Setenv("FEEDBACK_STORE", "")
	t.Setenv("CALL_CONFIRMATION_DELAY", "10s")
	t.Setenv("CALL_FAILURE_RESET_DELAY", "2s")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsMaxDurationAboveCeiling(t *testing.T) {
	t.Setenv("FEEDBACK_STORE", "")
	t.Setenv("CALL_MAX_DURATION", "3600")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not exceed 5m0s")

	t.Setenv("CALL_MAX_DURATION", "90s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Call.MaxDuration)
}

func TestLoadServerAddr(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	server, err := loadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = loadServerConfig()
	require.Error(t, err)
}
