// Package pypi is a minimal client for the PyPI JSON API
// (GET /pypi/<name>/json). It only extracts the fields the front-end
// needs and caches results, including negative ones — bots hammer the
// script endpoints with garbage names.
package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrNotFound means the index has no project under that name.
var ErrNotFound = errors.New("package not found")

const (
	cacheTTL         = 10 * time.Minute
	negativeCacheTTL = 1 * time.Minute
	requestTimeout   = 10 * time.Second
	retryBase        = 200 * time.Millisecond
	maxRetries       = 3
)

// Package is the subset of project metadata served to the front-end.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Summary string `json:"summary"`
}

// projectResponse mirrors the JSON API envelope.
type projectResponse struct {
	Info Package `json:"info"`
}

type cacheEntry struct {
	pkg     *Package // nil = negative entry (404)
	expires time.Time
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewClient creates a client for the given index base URL
// (e.g. "https://pypi.org").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		cache:   make(map[string]cacheEntry),
	}
}

// Metadata fetches project metadata by name. Returns ErrNotFound for
// unknown packages. Transient failures (5xx, transport errors) are retried
// with exponential backoff.
func (c *Client) Metadata(ctx context.Context, name string) (*Package, error) {
	// Check cache
	c.mu.RLock()
	if entry, ok := c.cache[name]; ok && time.Now().Before(entry.expires) {
		c.mu.RUnlock()
		if entry.pkg == nil {
			return nil, ErrNotFound
		}
		return entry.pkg, nil
	}
	c.mu.RUnlock()

	var pkg *Package
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pypi/"+name+"/json", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("index request: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("index returned %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("index returned %d", resp.StatusCode)
		}

		var pr projectResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			return fmt.Errorf("decode index response: %w", err)
		}
		pkg = &pr.Info
		return nil
	})

	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Cache the result (negative entries expire sooner)
	ttl := cacheTTL
	if pkg == nil {
		ttl = negativeCacheTTL
	}
	c.mu.Lock()
	c.cache[name] = cacheEntry{pkg: pkg, expires: time.Now().Add(ttl)}
	c.mu.Unlock()

	if pkg == nil {
		return nil, ErrNotFound
	}
	return pkg, nil
}

// Exists reports whether the index knows the package.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.Metadata(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
