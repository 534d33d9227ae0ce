package postgrest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
)

func TestSaveInsertsRow(t *testing.T) {
	var (
		gotPath   string
		gotKey    string
		gotAuth   string
		gotPrefer string
		gotRows   []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		gotPrefer = r.Header.Get("Prefer")
		_ = json.NewDecoder(r.Body).Decode(&gotRows)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store, err := New(Config{BaseURL: srv.URL + "/", APIKey: "anon-key"})
	require.NoError(t, err)
	defer store.Close()

	err = store.Save(context.Background(), feedback.Record{TaskCompleted: true, HumanScore: 5, FeedbackText: "", Agent: "tara"})
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/feedback", gotPath)
	assert.Equal(t, "anon-key", gotKey)
	assert.Equal(t, "Bearer anon-key", gotAuth)
	assert.Equal(t, "return=minimal", gotPrefer)
	require.Len(t, gotRows, 1)
	assert.Equal(t, map[string]any{
		"task_completed": true,
		"human_score":    float64(5),
		"feedback_text":  "",
		"agent":          "tara",
	}, gotRows[0])
}

func TestSaveSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"42501","message":"permission denied for table feedback"}`))
	}))
	defer srv.Close()

	store, err := New(Config{BaseURL: srv.URL, APIKey: "bad"})
	require.NoError(t, err)

	err = store.Save(context.Background(), feedback.Record{HumanScore: 1, Agent: "tara"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "42501", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "permission denied")
}

func TestNewRequiresConfiguration(t *testing.T) {
	_, err := New(Config{BaseURL: "", APIKey: "k"})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{BaseURL: "https://x.supabase.co"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
