package thumbnail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type probeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (p *probeRecorder) record(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
}

func (p *probeRecorder) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func newImageServer(t *testing.T, ok map[string]bool) (*httptest.Server, *probeRecorder) {
	t.Helper()
	rec := &probeRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r.URL.Path)
		for suffix, good := range ok {
			if good && strings.HasSuffix(r.URL.Path, suffix) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("jpeg"))
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestResolverReturnsFirstReachableTier(t *testing.T) {
	t.Parallel()

	srv, rec := newImageServer(t, map[string]bool{"/hqdefault.jpg": true, "/mqdefault.jpg": true})
	resolver := New(srv.Client(), Config{BaseURL: srv.URL + "/vi"}, zap.NewNop())

	got := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")

	require.Equal(t, srv.URL+"/vi/dQw4w9WgXcQ/hqdefault.jpg", got)
	require.Equal(t, []string{
		"/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		"/vi/dQw4w9WgXcQ/hqdefault.jpg",
	}, rec.snapshot(), "3rd and 4th candidates must never be probed")
}

func TestResolverPrefersHighestTier(t *testing.T) {
	t.Parallel()

	srv, rec := newImageServer(t, map[string]bool{"/maxresdefault.jpg": true})
	resolver := New(srv.Client(), Config{BaseURL: srv.URL + "/vi"}, zap.NewNop())

	got := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")

	require.Equal(t, srv.URL+"/vi/dQw4w9WgXcQ/maxresdefault.jpg", got)
	require.Len(t, rec.snapshot(), 1)
}

func TestResolverFallsBackWhenAllTiersFail(t *testing.T) {
	t.Parallel()

	srv, rec := newImageServer(t, nil)
	resolver := New(srv.Client(), Config{BaseURL: srv.URL + "/vi"}, zap.NewNop())

	got := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")

	require.Equal(t, srv.URL+"/vi/dQw4w9WgXcQ/hqdefault.jpg", got)
	require.Len(t, rec.snapshot(), 4)
}

func TestResolverTreatsTransportErrorsAsMisses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/vi"
	srv.Close()

	resolver := New(nil, Config{BaseURL: base}, nil)

	require.NotPanics(t, func() {
		got := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")
		require.Equal(t, base+"/dQw4w9WgXcQ/hqdefault.jpg", got)
	})
}

func TestDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://i.ytimg.com/vi/abc/hqdefault.jpg", Default("", "abc"))
}
