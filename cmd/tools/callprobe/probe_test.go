package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/handler"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
	"github.com/zhouzirui/tara-call/backend/internal/service/credentials"
	feedbackservice "github.com/zhouzirui/tara-call/backend/internal/service/feedback"
)

func newBackend(t *testing.T) (*httptest.Server, *feedback.MemoryStore) {
	t.Helper()
	store := feedback.NewMemoryStore()
	agents := agent.NewMemoryStore(agent.Seed())
	srv := httptest.NewServer(handler.NewRouter(handler.Deps{
		Agents: agents,
		Credentials: credentials.NewService(config.LiveKitConfig{
			URL:       "wss://tara.livekit.example",
			APIKey:    "devkey",
			APISecret: "devsecret-devsecret-devsecret-00",
		}, agents, nil),
		Feedback: feedbackservice.NewService(store, feedbackservice.Options{}),
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestProbeSubmitsFeedback(t *testing.T) {
	srv, store := newBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := probe(ctx, probeOptions{
		BaseURL:       srv.URL,
		Agent:         "tara",
		CallDuration:  50 * time.Millisecond,
		TaskCompleted: true,
		Score:         4,
		Text:          "clear answers",
		Timeout:       time.Second,
		resetDelay:    20 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, "tara-medical-counselor", result.Room)
	assert.Regexp(t, `^user-`, result.Participant)
	assert.Equal(t, callmodel.EndReasonUser, result.EndReason)
	assert.True(t, result.Submitted)
	assert.True(t, result.Recorded)
	assert.Equal(t, callmodel.StateIdle, result.FinalState)
	assert.Equal(t, []feedback.Record{{TaskCompleted: true, HumanScore: 4, FeedbackText: "clear answers", Agent: "tara"}}, store.Records())
}

func TestProbeExpiresAndSkips(t *testing.T) {
	srv, store := newBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := probe(ctx, probeOptions{
		BaseURL:      srv.URL,
		CallDuration: 300 * time.Millisecond,
		MaxDuration:  50 * time.Millisecond,
		SkipFeedback: true,
		Timeout:      time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, callmodel.EndReasonExpired, result.EndReason)
	assert.False(t, result.Submitted)
	assert.Equal(t, callmodel.StateIdle, result.FinalState)
	assert.Empty(t, store.Records())
}

func TestProbeUnknownAgentFails(t *testing.T) {
	srv, _ := newBackend(t)

	_, err := probe(context.Background(), probeOptions{BaseURL: srv.URL, Agent: "socrates", Timeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get connection details: Bad Request")
}
