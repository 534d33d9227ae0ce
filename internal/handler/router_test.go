package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
	credentialService "github.com/zhouzirui/tara-call/backend/internal/service/credentials"
	feedbackService "github.com/zhouzirui/tara-call/backend/internal/service/feedback"
)

func newTestRouter(store feedback.Store) http.Handler {
	agents := agent.NewMemoryStore(agent.Seed())
	return NewRouter(Deps{
		Agents: agents,
		Credentials: credentialService.NewService(config.LiveKitConfig{
			URL:       "wss://tara.livekit.example",
			APIKey:    "devkey",
			APISecret: "devsecret-devsecret-devsecret-00",
			TokenTTL:  15 * time.Minute,
		}, agents, nil),
		Feedback: feedbackService.NewService(store, feedbackService.Options{}),
		Call:     config.CallConfig{MaxDuration: 5 * time.Minute, ConfirmationDelay: 3 * time.Second, FailureResetDelay: 6 * time.Second},
	})
}

func TestRouterServesAPI(t *testing.T) {
	store := feedback.NewMemoryStore()
	r := newTestRouter(store)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/agents", "", http.StatusOK},
		{http.MethodGet, "/api/connection-details", "", http.StatusOK},
		{http.MethodPost, "/api/feedback", `{"taskCompleted":true,"humanScore":3,"feedbackText":"ok","timestamp":""}`, http.StatusOK},
		{http.MethodGet, "/api/missing", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, tc.want, resp.Code, "%s %s", tc.method, tc.path)
	}

	require.Len(t, store.Records(), 1)
}

func TestRouterConnectionDetailsNotCached(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter(feedback.NewMemoryStore()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/connection-details", nil))

	assert.Equal(t, "no-store", resp.Header().Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}
