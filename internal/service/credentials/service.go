package credentials

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/metrics"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	"github.com/zhouzirui/tara-call/backend/internal/model/call"
)

// DefaultTTL is how long an issued join token stays valid.
const DefaultTTL = 15 * time.Minute

var (
	ErrMissingURL       = errors.New("LiveKit URL is not configured")
	ErrMissingAPIKey    = errors.New("LiveKit API key is not configured")
	ErrMissingAPISecret = errors.New("LiveKit API secret is not configured")
	ErrUnknownAgent     = errors.New("agent not found")
)

// IsConfigError reports whether err stems from missing issuer configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingURL) || errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrMissingAPISecret)
}

// Service mints short-lived room join credentials. It holds no per-request state.
type Service struct {
	cfg         config.LiveKitConfig
	agents      agent.Store
	metrics     *metrics.Recorder
	newIdentity func() string
}

// NewService creates the credential issuer.
func NewService(cfg config.LiveKitConfig, agents agent.Store, recorder *metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Noop()
	}
	return &Service{
		cfg:         cfg,
		agents:      agents,
		metrics:     recorder,
		newIdentity: randomIdentity,
	}
}

// randomIdentity 生成参与者身份，随机后缀足以避免低并发下的同房间冲突。
func randomIdentity() string {
	return "user-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Issue returns connection details for agentID, or the default agent when empty.
func (s *Service) Issue(ctx context.Context, agentID string) (call.ConnectionDetails, error) {
	serverURL, apiKey, apiSecret, err := resolveCredentials(s.cfg)
	if err != nil {
		s.metrics.CredentialFailed(ctx, "config")
		return call.ConnectionDetails{}, err
	}

	if agentID == "" {
		agentID = agent.DefaultID
	}
	target, ok := s.agents.FindByID(agentID)
	if !ok {
		s.metrics.CredentialFailed(ctx, "agent")
		return call.ConnectionDetails{}, errors.Wrapf(ErrUnknownAgent, "agent %q", agentID)
	}

	identity := s.newIdentity()
	ttl := s.cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	allow := true
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           target.RoomName,
		CanPublish:     &allow,
		CanSubscribe:   &allow,
		CanPublishData: &allow,
	}

	token, err := auth.NewAccessToken(apiKey, apiSecret).
		AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(ttl).
		ToJWT()
	if err != nil {
		s.metrics.CredentialFailed(ctx, "sign")
		return call.ConnectionDetails{}, errors.Wrap(err, "sign participant token")
	}

	s.metrics.CredentialIssued(ctx, target.ID)
	log.Info().
		Str("component", "credentials").
		Str("room", target.RoomName).
		Str("participant", identity).
		Dur("ttl", ttl).
		Msg("connection details generated")

	return call.ConnectionDetails{
		ServerURL:        serverURL,
		RoomName:         target.RoomName,
		ParticipantName:  identity,
		ParticipantToken: token,
	}, nil
}
