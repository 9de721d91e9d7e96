package metadata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	log "github.com/sirupsen/logrus"
)

// HTTPError is a non-success response from a metadata service.
type HTTPError struct {
	Server     string
	Endpoint   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Server, e.Endpoint, e.StatusCode)
}

// restClient issues JSON requests against one service and counts them.
type restClient struct {
	name    string
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
	calls   *CallCounter
}

func (c *restClient) do(ctx context.Context, method, endpoint string, body []byte, authenticate bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticate {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.calls.Inc(c.name)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s %s: %w", c.name, endpoint, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, naming.Fatal(&HTTPError{Server: c.name, Endpoint: endpoint, StatusCode: resp.StatusCode})
	default:
		log.WithFields(log.Fields{
			"server":   c.name,
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("metadata request failed")
		return nil, &HTTPError{Server: c.name, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
}

// exists issues an unauthenticated GET of an absolute URL and reports whether
// it answered 200. Public object URLs are not counted as metadata calls.
func (c *restClient) exists(ctx context.Context, rawURL string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("error checking %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// CallCounter counts requests per server for the end of run summary.
type CallCounter struct {
	mutex sync.Mutex
	calls map[string]int
}

func NewCallCounter() *CallCounter {
	return &CallCounter{calls: map[string]int{}}
}

func (c *CallCounter) Inc(server string) {
	if c == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.calls[server]++
}

// Snapshot returns a copy of the per-server counts.
func (c *CallCounter) Snapshot() map[string]int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make(map[string]int, len(c.calls))
	for k, v := range c.calls {
		out[k] = v
	}
	return out
}
