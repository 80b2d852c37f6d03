package shardstore

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Source fetches the raw bytes of a named shard document.
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// shardNamePattern restricts shard names to safe path components.
var shardNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidateShardName rejects names that could escape the source's namespace.
func ValidateShardName(name string) error {
	if !shardNamePattern.MatchString(name) {
		return fmt.Errorf("invalid shard name %q", name)
	}
	return nil
}

// retryBaseDelay is the base duration for exponential backoff on retryable
// HTTP responses. Tests override this to avoid real sleeps.
var retryBaseDelay = 500 * time.Millisecond

// HTTPSource fetches shard documents from object storage over HTTP.
type HTTPSource struct {
	baseURL    string
	client     *http.Client
	maxRetries int
}

// NewHTTPSource creates a source reading <baseURL>/<name>.json. timeout
// bounds each individual request; maxRetries bounds retry attempts on 429
// and 5xx responses.
func NewHTTPSource(baseURL string, timeout time.Duration, maxRetries int) *HTTPSource {
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// Fetch retrieves the named shard document, retrying throttled and transient
// server failures with exponential backoff. The delay doubles each attempt
// and the context cancels both requests and backoff waits.
func (s *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateShardName(name); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s.json", s.baseURL, name)

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("shard %s: building request: %w", name, err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("shard %s: fetching: %w", name, err)
		}

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("shard %s: reading body: %w", name, err)
			}
			return data, nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if !retryable || attempt >= s.maxRetries {
			return nil, fmt.Errorf("shard %s: unexpected status %d", name, resp.StatusCode)
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * retryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// DirSource reads shard documents from a local directory. Used in
// development and tests.
type DirSource struct {
	dir string
}

// NewDirSource creates a source reading <dir>/<name>.json.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Dir returns the directory the source reads from.
func (s *DirSource) Dir() string { return s.dir }

// Fetch reads the named shard document from disk.
func (s *DirSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateShardName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("shard %s: reading file: %w", name, err)
	}
	return data, nil
}
