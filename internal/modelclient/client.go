// Package modelclient queries a deployed model's inference endpoint over
// HTTP. Transient transport failures are retried with exponential backoff;
// anything still failing after the retry budget surfaces to the calling
// detector as a failure.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	defaultAttempts  = 3
	initialBackoff   = 1 * time.Second
	maxBackoff       = 10 * time.Second
	defaultReqTimout = 30 * time.Second
)

type queryRequest struct {
	Prompt string `json:"prompt"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Client talks to one model endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	attempts   int
}

// New builds a client for the given inference endpoint. A zero timeout
// falls back to the default per-request timeout.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultReqTimout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultAttempts,
	}
}

// Query posts a prompt to the model and returns its response text.
func (c *Client) Query(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(queryRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt: %w", err)
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		response, retryable, err := c.post(ctx, body)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !retryable {
			return "", err
		}
		log.Printf("Model query attempt %d/%d failed: %v", attempt, c.attempts, err)
	}

	return "", fmt.Errorf("model not accessible after %d attempts: %w", c.attempts, lastErr)
}

// post performs one request. The second return value reports whether the
// failure is worth retrying.
func (c *Client) post(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("model endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", false, fmt.Errorf("model endpoint returned %d", resp.StatusCode)
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode model response: %w", err)
	}

	return parsed.Response, false, nil
}
