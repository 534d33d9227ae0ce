package connection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	"github.com/zhouzirui/tara-call/backend/internal/model/call"
	"github.com/zhouzirui/tara-call/backend/internal/service/credentials"
)

func setupRouter(cfg config.LiveKitConfig) *chi.Mux {
	svc := credentials.NewService(cfg, agent.NewMemoryStore(agent.Seed()), nil)
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

var configured = config.LiveKitConfig{
	URL:       "wss://tara.livekit.example",
	APIKey:    "devkey",
	APISecret: "devsecret-devsecret-devsecret-00",
	TokenTTL:  15 * time.Minute,
}

func TestConnectionDetailsIssued(t *testing.T) {
	r := setupRouter(configured)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/connection-details", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "no-store", resp.Header().Get("Cache-Control"))

	var details call.ConnectionDetails
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &details))
	assert.Equal(t, configured.URL, details.ServerURL)
	assert.Equal(t, "tara-medical-counselor", details.RoomName)
	assert.Regexp(t, `^user-[0-9a-f]{8}$`, details.ParticipantName)
	assert.NotEmpty(t, details.ParticipantToken)
}

func TestConnectionDetailsMissingConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.LiveKitConfig
		want string
	}{
		{"url", config.LiveKitConfig{APIKey: "k", APISecret: "s"}, credentials.ErrMissingURL.Error()},
		{"key", config.LiveKitConfig{URL: "wss://x", APISecret: "s"}, credentials.ErrMissingAPIKey.Error()},
		{"secret", config.LiveKitConfig{URL: "wss://x", APIKey: "k"}, credentials.ErrMissingAPISecret.Error()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			setupRouter(tc.cfg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/connection-details", nil))

			assert.Equal(t, http.StatusInternalServerError, resp.Code)
			assert.Equal(t, "no-store", resp.Header().Get("Cache-Control"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, tc.want, body["error"])
		})
	}
}

func TestConnectionDetailsUnknownAgent(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter(configured).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/connection-details?agent=socrates", nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "no-store", resp.Header().Get("Cache-Control"))
}
