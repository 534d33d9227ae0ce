// Package postgrest stores feedback rows through a Supabase / PostgREST endpoint.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
)

var ErrNotConfigured = errors.New("postgrest url and key are required")

// APIError is the error body PostgREST returns on a rejected insert.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postgrest: status %d", e.StatusCode)
	}
	return fmt.Sprintf("postgrest: status %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Config locates the REST endpoint. BaseURL is the project URL, without /rest/v1.
type Config struct {
	BaseURL string
	APIKey  string
	Table   string
	Timeout time.Duration
}

// Store inserts one row per Save into the configured table.
type Store struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// New builds a Store. The HTTP client is created once and reused by every request.
func New(cfg Config) (*Store, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	key := strings.TrimSpace(cfg.APIKey)
	if base == "" || key == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errors.Wrapf(err, "invalid postgrest url %q", base)
	}

	table := cfg.Table
	if table == "" {
		table = "feedback"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Store{
		endpoint: base + "/rest/v1/" + url.PathEscape(table),
		apiKey:   key,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Save posts record as a single-row insert.
func (s *Store) Save(ctx context.Context, record feedback.Record) error {
	body, err := json.Marshal([]feedback.Record{record})
	if err != nil {
		return errors.Wrap(err, "marshal feedback record")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build postgrest request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "postgrest insert")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
	}
	return apiErr
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
