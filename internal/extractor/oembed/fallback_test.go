package oembed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

type countingThumbs struct {
	calls atomic.Int32
}

func (c *countingThumbs) Resolve(_ context.Context, id string) string {
	c.calls.Add(1)
	return "https://thumbs.test/" + id + "/maxresdefault.jpg"
}

const watch = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestFallbackSuccess(t *testing.T) {
	t.Parallel()

	queries := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Example Title","author_name":"Rick Astley","thumbnail_url":"ignored"}`))
	}))
	defer srv.Close()

	thumbs := &countingThumbs{}
	f := New(srv.Client(), thumbs, Config{Endpoint: srv.URL + "/oembed"}, zap.NewNop())

	res, err := f.Extract(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	query := <-queries
	require.Equal(t, watch, query.Get("url"))
	require.Equal(t, "json", query.Get("format"))
	require.Equal(t, "Example Title", res.Title)
	require.Equal(t, "Rick Astley", res.Creator)
	require.Zero(t, res.Duration)
	require.Empty(t, res.Tags)
	require.False(t, res.EnrichmentFailed)
	require.Equal(t, "https://thumbs.test/dQw4w9WgXcQ/maxresdefault.jpg", res.Thumbnail)
	require.EqualValues(t, 1, thumbs.calls.Load())
}

func TestFallbackReturnsStubOnEndpointFailure(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name:    "non-200",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			want:    "unexpected status 401",
		},
		{
			name:    "bad json",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html>")) },
			want:    "decode oembed response",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			thumbs := &countingThumbs{}
			f := New(srv.Client(), thumbs, Config{Endpoint: srv.URL, ThumbnailBase: "https://img.test/vi"}, zap.NewNop())

			res, err := f.Extract(context.Background(), watch)
			require.NoError(t, err, "stub is returned, not thrown")
			require.True(t, res.EnrichmentFailed)
			require.Contains(t, res.ErrorMessage, tc.want)
			require.Equal(t, "https://img.test/vi/dQw4w9WgXcQ/hqdefault.jpg", res.Thumbnail)
			require.Zero(t, thumbs.calls.Load(), "stub thumbnail is never probed")
		})
	}
}

func TestFallbackFailsFastOnUnparseableID(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	f := New(srv.Client(), nil, Config{Endpoint: srv.URL}, zap.NewNop())

	_, err := f.Extract(context.Background(), "https://www.youtube.com/channel/UC123")
	var extractionErr *enrich.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	require.Equal(t, Name, extractionErr.Strategy)
	require.Zero(t, hits.Load())
}

func TestFallbackApplies(t *testing.T) {
	t.Parallel()

	f := New(nil, nil, Config{}, nil)
	require.True(t, f.Applies(watch))
	require.False(t, f.Applies("https://vimeo.com/1"))
}
