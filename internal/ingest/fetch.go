package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Fetcher retrieves the raw content behind a source URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FileFetcher reads local paths and file:// URIs.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(LocalPath(uri))
}

// HTTPFetcher issues a GET per fetch. Non-2xx responses are errors.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher whose client enforces timeout per request.
// A non-positive timeout falls back to 10s.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch implements Fetcher.
func (h *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	// The pipeline rewrites files in place; never serve a cached copy.
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.New(resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// MuxFetcher routes http(s) URIs to HTTP and everything else to File.
type MuxFetcher struct {
	HTTP Fetcher
	File Fetcher
}

// NewMuxFetcher builds the default fetcher used by the dashboard.
func NewMuxFetcher(timeout time.Duration) *MuxFetcher {
	return &MuxFetcher{HTTP: NewHTTPFetcher(timeout), File: FileFetcher{}}
}

// Fetch implements Fetcher.
func (m *MuxFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if IsRemote(uri) {
		return m.HTTP.Fetch(ctx, uri)
	}
	return m.File.Fetch(ctx, uri)
}

// IsRemote reports whether uri has an http or https scheme.
func IsRemote(uri string) bool {
	lower := strings.ToLower(strings.TrimSpace(uri))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// LocalPath strips a file:// scheme, returning a filesystem path.
// Remote URIs are returned unchanged.
func LocalPath(uri string) string {
	if !strings.HasPrefix(strings.ToLower(uri), "file://") {
		return uri
	}
	p := uri[len("file://"):]
	if strings.HasPrefix(p, "localhost/") {
		p = p[len("localhost"):]
	}
	return p
}
