package call

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
)

const defaultClientTimeout = 15 * time.Second

// HTTPCredentialClient fetches connection details from the issuing endpoint.
type HTTPCredentialClient struct {
	baseURL string
	agent   string
	client  *http.Client
}

// NewHTTPCredentialClient returns a client for GET {baseURL}/api/connection-details.
// A nil client gets a default with a 15 second timeout.
func NewHTTPCredentialClient(baseURL, agent string, client *http.Client) *HTTPCredentialClient {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &HTTPCredentialClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		agent:   agent,
		client:  client,
	}
}

func (c *HTTPCredentialClient) FetchCredential(ctx context.Context) (callmodel.ConnectionDetails, error) {
	endpoint := c.baseURL + "/api/connection-details"
	if c.agent != "" {
		endpoint += "?" + url.Values{"agent": {c.agent}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return callmodel.ConnectionDetails{}, errors.Wrap(err, "build connection details request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return callmodel.ConnectionDetails{}, errors.Wrap(err, "failed to get connection details")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return callmodel.ConnectionDetails{}, errors.Errorf("failed to get connection details: %s", statusText(resp))
	}

	var details callmodel.ConnectionDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return callmodel.ConnectionDetails{}, errors.Wrap(ErrInvalidDetails, err.Error())
	}
	return details, nil
}

// HTTPFeedbackClient posts submissions to the feedback endpoint.
type HTTPFeedbackClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFeedbackClient returns a client for POST {baseURL}/api/feedback.
func NewHTTPFeedbackClient(baseURL string, client *http.Client) *HTTPFeedbackClient {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &HTTPFeedbackClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *HTTPFeedbackClient) SubmitFeedback(ctx context.Context, sub feedback.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return errors.Wrap(err, "encode feedback")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/feedback", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build feedback request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "submit feedback")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("submit feedback: %s", statusText(resp))
	}
	return nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
