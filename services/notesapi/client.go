// Package notesapi is the client of a remote notes backend serving the dynamic tree.
package notesapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core/tree"
)

const (
	DefaultBaseURL       = "http://localhost:8080/api"
	DefaultHealthTimeout = 2 * time.Second
	defaultTimeout       = 15 * time.Second
)

// Client talks to a notes backend.
type Client struct {
	baseURL       string
	healthTimeout time.Duration
	http          *http.Client
}

// NewClient returns a Client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, healthTimeout time.Duration, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		healthTimeout: healthTimeout,
		http:          httpClient,
	}
}

// BaseURL of the backend.
func (c *Client) BaseURL() string { return c.baseURL }

// CheckHealth reports whether `GET /health` answers with a 2xx status within the health timeout.
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// FetchTree gets the published tree from `GET /public/tree`.
func (c *Client) FetchTree(ctx context.Context) (tree.Tree, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/public/tree", nil)
	if err != nil {
		return nil, errors.Wrap(err, "building tree request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching tree")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("fetching tree: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	t := make(tree.Tree)
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, errors.Wrap(err, "decoding tree")
	}
	return t, nil
}
