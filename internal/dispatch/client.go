// Package dispatch sends finished transcripts to the remote intent service
// and returns the reply to display and speak.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parley/internal/domain"
)

// DefaultTimeout bounds one query round trip. Callers that want an unbounded
// wait pass zero explicitly.
const DefaultTimeout = 30 * time.Second

// Client talks to one intent service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a dispatcher for the given base URL. A zero timeout
// disables the per-request deadline; negative values fall back to
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout < 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	Text string `json:"text"`
}

// Dispatch sends one query and returns the service's reply. Failures to
// reach the service or non-success responses surface as transport errors so
// the caller can show the connectivity message instead of a raw error.
func (c *Client) Dispatch(ctx context.Context, text string) (domain.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Reply{}, domain.ErrEmptyQuery
	}

	body, err := json.Marshal(queryRequest{Text: text})
	if err != nil {
		return domain.Reply{}, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/process-query", bytes.NewReader(body))
	if err != nil {
		return domain.Reply{}, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Reply{}, &domain.TransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := fmt.Sprintf("intent service returned %s", resp.Status)
		if detail := strings.TrimSpace(string(payload)); detail != "" {
			message = fmt.Sprintf("%s: %s", message, detail)
		}
		return domain.Reply{}, &domain.TransportError{Message: message}
	}

	var reply domain.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return domain.Reply{}, &domain.TransportError{Message: fmt.Sprintf("decode reply: %v", err)}
	}
	return reply, nil
}
