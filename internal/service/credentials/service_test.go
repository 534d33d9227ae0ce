package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
)

type videoClaims struct {
	RoomJoin       bool   `json:"roomJoin"`
	Room           string `json:"room"`
	CanPublish     *bool  `json:"canPublish"`
	CanSubscribe   *bool  `json:"canSubscribe"`
	CanPublishData *bool  `json:"canPublishData"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Video *videoClaims `json:"video"`
}

func validConfig() config.LiveKitConfig {
	return config.LiveKitConfig{
		URL:       "wss://tara.livekit.cloud",
		APIKey:    "APIkey123",
		APISecret: "a-very-long-secret-used-for-signing-tokens",
		TokenTTL:  DefaultTTL,
	}
}

func parseToken(t *testing.T, token, secret string) *tokenClaims {
	t.Helper()
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithLeeway(time.Minute))
	require.NoError(t, err)
	return claims
}

func TestIssueSignsScopedToken(t *testing.T) {
	cfg := validConfig()
	svc := NewService(cfg, agent.NewMemoryStore(agent.Seed()), nil)

	details, err := svc.Issue(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, cfg.URL, details.ServerURL)
	assert.Equal(t, "tara-medical-counselor", details.RoomName)
	assert.Regexp(t, `^user-[0-9a-f]{8}$`, details.ParticipantName)
	require.NotEmpty(t, details.ParticipantToken)

	claims := parseToken(t, details.ParticipantToken, cfg.APISecret)
	assert.Equal(t, cfg.APIKey, claims.Issuer)
	assert.Equal(t, details.ParticipantName, claims.Subject)
	require.NotNil(t, claims.ExpiresAt)
	require.NotNil(t, claims.NotBefore)
	assert.InDelta(t, DefaultTTL.Seconds(), claims.ExpiresAt.Sub(claims.NotBefore.Time).Seconds(), 1)

	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, details.RoomName, claims.Video.Room)
	for _, grant := range []*bool{claims.Video.CanPublish, claims.Video.CanSubscribe, claims.Video.CanPublishData} {
		require.NotNil(t, grant)
		assert.True(t, *grant)
	}
}

func TestIssueGeneratesDistinctIdentities(t *testing.T) {
	svc := NewService(validConfig(), agent.NewMemoryStore(agent.Seed()), nil)

	first, err := svc.Issue(context.Background(), agent.DefaultID)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), agent.DefaultID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ParticipantName, second.ParticipantName)
	assert.Equal(t, first.RoomName, second.RoomName)
}

func TestIssueMissingConfiguration(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.LiveKitConfig)
		want   error
	}{
		{"url", func(c *config.LiveKitConfig) { c.URL = "" }, ErrMissingURL},
		{"key", func(c *config.LiveKitConfig) { c.APIKey = "  " }, ErrMissingAPIKey},
		{"secret", func(c *config.LiveKitConfig) { c.APISecret = "" }, ErrMissingAPISecret},
		{"url before secret", func(c *config.LiveKitConfig) { c.URL = ""; c.APISecret = "" }, ErrMissingURL},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			svc := NewService(cfg, agent.NewMemoryStore(agent.Seed()), nil)

			details, err := svc.Issue(context.Background(), "")
			require.ErrorIs(t, err, tc.want)
			assert.True(t, IsConfigError(err))
			assert.Empty(t, details.ParticipantToken)
			assert.Empty(t, details.ServerURL)
		})
	}
}

func TestIssueUnknownAgent(t *testing.T) {
	svc := NewService(validConfig(), agent.NewMemoryStore(agent.Seed()), nil)

	_, err := svc.Issue(context.Background(), "socrates")
	require.ErrorIs(t, err, ErrUnknownAgent)
	assert.False(t, IsConfigError(err))
}
