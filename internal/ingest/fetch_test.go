package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	var cacheControl string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cacheControl = r.Header.Get("Cache-Control")
		switch r.URL.Path {
		case "/summary.json":
			_, _ = w.Write([]byte(`{"unique_urls":3}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	data, err := f.Fetch(context.Background(), srv.URL+"/summary.json")
	require.NoError(t, err)
	assert.Equal(t, `{"unique_urls":3}`, string(data))
	assert.Equal(t, "no-cache", cacheControl)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPFetcherHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPFetcher(time.Minute).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attack_log.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,event\n"), 0o644))

	var f FileFetcher
	data, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,event\n", string(data))

	data, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "nope.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

type stubFetcher struct{ name string }

func (s stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return []byte(s.name), nil
}

func TestMuxFetcherRouting(t *testing.T) {
	m := &MuxFetcher{HTTP: stubFetcher{"http"}, File: stubFetcher{"file"}}
	for uri, want := range map[string]string{
		"http://range.local/summary.json": "http",
		"HTTPS://range.local/summary.json": "http",
		"data/summary.json":                "file",
		"file:///var/range/summary.json":   "file",
	} {
		got, err := m.Fetch(context.Background(), uri)
		require.NoError(t, err)
		assert.Equal(t, want, string(got), uri)
	}
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/var/range/a.json", LocalPath("file:///var/range/a.json"))
	assert.Equal(t, "/var/range/a.json", LocalPath("file://localhost/var/range/a.json"))
	assert.Equal(t, "data/a.json", LocalPath("file://data/a.json"))
	assert.Equal(t, "data/a.json", LocalPath("data/a.json"))
	assert.Equal(t, "http://x/a.json", LocalPath("http://x/a.json"))

	assert.True(t, IsRemote(" https://x/a.json"))
	assert.False(t, IsRemote("ftp://x/a.json"))
}
