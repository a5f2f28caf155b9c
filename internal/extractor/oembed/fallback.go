// Package oembed implements the metadata-only fallback for the recognized platform.
package oembed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/platform"
	"github.com/JakeFAU/catalog-enricher/internal/thumbnail"
)

// Name labels this strategy in logs and metrics.
const Name = "oembed"

// DefaultEndpoint is the public, key-less oEmbed endpoint.
const DefaultEndpoint = "https://www.youtube.com/oembed"

// maxBody caps how much of the endpoint response is read.
const maxBody = 1 << 20

// Config controls the endpoint and thumbnail host.
type Config struct {
	Endpoint      string
	ThumbnailBase string
	Timeout       time.Duration
}

type response struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Fallback is the API-only extraction strategy.
type Fallback struct {
	client *http.Client
	thumbs enrich.ThumbnailResolver
	cfg    Config
	logger *zap.Logger
}

// New constructs a Fallback. A nil client gets a default with cfg.Timeout.
func New(client *http.Client, thumbs enrich.ThumbnailResolver, cfg Config, logger *zap.Logger) *Fallback {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{client: client, thumbs: thumbs, cfg: cfg, logger: logger}
}

// Name implements enrich.Strategy.
func (f *Fallback) Name() string { return Name }

// Applies implements enrich.Strategy; only the recognized platform has the API.
func (f *Fallback) Applies(sourceURL string) bool {
	return platform.IsRecognized(sourceURL)
}

// Extract fetches title and author from the endpoint. An unparseable URL is
// an error; an endpoint failure yields a stub Result flagged EnrichmentFailed.
func (f *Fallback) Extract(ctx context.Context, sourceURL string) (enrich.Result, error) {
	videoID, ok := platform.VideoID(sourceURL)
	if !ok {
		return enrich.Result{}, &enrich.ExtractionError{
			Strategy: Name,
			URL:      sourceURL,
			Err:      errors.New("cannot parse video id"),
		}
	}

	watchURL := platform.WatchURL(videoID)
	body, err := f.fetch(ctx, watchURL)
	if err != nil {
		f.logger.Warn("fallback metadata unavailable, using stub",
			zap.String("url", sourceURL),
			zap.String("video_id", videoID),
			zap.Error(err),
		)
		return f.Stub(videoID, err), nil
	}

	res := enrich.Result{
		Title:   body.Title,
		Creator: body.AuthorName,
		URL:     watchURL,
	}
	if f.thumbs != nil {
		res.Thumbnail = f.thumbs.Resolve(ctx, videoID)
	} else {
		res.Thumbnail = thumbnail.Default(f.cfg.ThumbnailBase, videoID)
	}
	return res, nil
}

// Stub builds the minimal degraded Result. The thumbnail is the default tier, unprobed.
func (f *Fallback) Stub(videoID string, cause error) enrich.Result {
	msg := "metadata unavailable"
	if cause != nil {
		msg = cause.Error()
	}
	return enrich.Result{
		Title:            "YouTube video " + videoID,
		URL:              platform.WatchURL(videoID),
		Thumbnail:        thumbnail.Default(f.cfg.ThumbnailBase, videoID),
		EnrichmentFailed: true,
		ErrorMessage:     msg,
	}
}

func (f *Fallback) fetch(ctx context.Context, watchURL string) (response, error) {
	endpoint, err := url.Parse(f.cfg.Endpoint)
	if err != nil {
		return response{}, fmt.Errorf("parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", watchURL)
	q.Set("format", "json")
	endpoint.RawQuery = q.Encode()
	target := endpoint.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return response{}, &enrich.NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	if resp.StatusCode != http.StatusOK {
		return response{}, &enrich.NetworkError{URL: target, StatusCode: resp.StatusCode}
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return response{}, fmt.Errorf("decode oembed response: %w", err)
	}
	return body, nil
}
