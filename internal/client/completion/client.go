// Package completion calls the AI completion backend.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrCompletionFailed wraps every non-success outcome of Suggest.
var ErrCompletionFailed = errors.New("completion failed")

// Client posts the buffer to /api/complete and returns the suggestion.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a client for the backend at baseURL. A nil httpClient uses a
// client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/api/complete",
		http:     httpClient,
	}
}

type request struct {
	Code string `json:"code"`
}

type response struct {
	Suggestion string `json:"suggestion"`
	Error      string `json:"error,omitempty"`
}

// Suggest requests a completion for code.
func (c *Client) Suggest(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(request{Code: code})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrCompletionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrCompletionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrCompletionFailed, err)
	}

	var out response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != "" {
			return "", fmt.Errorf("%w: %s (status %d)", ErrCompletionFailed, out.Error, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status %d", ErrCompletionFailed, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrCompletionFailed, decodeErr)
	}
	return out.Suggestion, nil
}
