package feedback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
	feedbackservice "github.com/zhouzirui/tara-call/backend/internal/service/feedback"
)

type failingStore struct{ calls int }

func (s *failingStore) Save(context.Context, feedback.Record) error {
	s.calls++
	return errors.New("connection reset by peer")
}

func (s *failingStore) Close() error { return nil }

func setupRouter(store feedback.Store) *chi.Mux {
	svc := feedbackservice.NewService(store, feedbackservice.Options{})
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitFeedbackSaved(t *testing.T) {
	store := feedback.NewMemoryStore()
	resp := post(setupRouter(store), `{"taskCompleted":true,"humanScore":4,"feedbackText":"","timestamp":"2026-03-01T10:00:00Z"}`)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"success":true}`, resp.Body.String())

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, feedback.Record{TaskCompleted: true, HumanScore: 4, FeedbackText: "", Agent: "tara"}, records[0])
}

func TestSubmitFeedbackInvalid(t *testing.T) {
	cases := map[string]string{
		"string task":    `{"taskCompleted":"yes","humanScore":4,"feedbackText":"","timestamp":""}`,
		"missing score":  `{"taskCompleted":true,"feedbackText":"","timestamp":""}`,
		"score too high": `{"taskCompleted":true,"humanScore":9,"feedbackText":"","timestamp":""}`,
		"numeric text":   `{"taskCompleted":true,"humanScore":3,"feedbackText":5,"timestamp":""}`,
		"not json":       `taskCompleted=true`,
		"missing stamp":  `{"taskCompleted":true,"humanScore":3,"feedbackText":""}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			store := feedback.NewMemoryStore()
			resp := post(setupRouter(store), body)

			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.JSONEq(t, `{"error":"Invalid feedback data"}`, resp.Body.String())
			assert.Empty(t, store.Records())
		})
	}
}

func TestSubmitFeedbackStoreFailure(t *testing.T) {
	store := &failingStore{}
	resp := post(setupRouter(store), `{"taskCompleted":false,"humanScore":1,"feedbackText":"hard to hear","timestamp":""}`)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"Failed to save feedback"}`, resp.Body.String())
	assert.Equal(t, 1, store.calls)
}
