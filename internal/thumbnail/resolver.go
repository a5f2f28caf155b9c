// Package thumbnail probes fixed-resolution thumbnail tiers for a video.
package thumbnail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
	"github.com/JakeFAU/catalog-enricher/internal/platform"
)

// Config controls the resolver's image host and per-probe timeout.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Resolver picks the highest reachable thumbnail tier.
type Resolver struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

// New constructs a Resolver. A nil client gets a default with cfg.Timeout.
func New(client *http.Client, cfg Config, logger *zap.Logger) *Resolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = platform.DefaultThumbnailBase
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, cfg: cfg, logger: logger}
}

// Resolve probes each tier in order and returns the first that answers 200.
// Probing is sequential. If nothing answers, the fallback tier is returned.
func (r *Resolver) Resolve(ctx context.Context, videoID string) string {
	for _, tier := range platform.ThumbnailTiers {
		candidate := platform.ThumbnailURL(r.cfg.BaseURL, videoID, tier)
		err := r.probe(ctx, candidate)
		metrics.ObserveThumbnailProbe(tier, err == nil)
		if err == nil {
			r.logger.Debug("thumbnail resolved", zap.String("video_id", videoID), zap.String("tier", tier))
			return candidate
		}
		r.logger.Debug("thumbnail not accessible",
			zap.String("video_id", videoID),
			zap.String("tier", tier),
			zap.Error(err),
		)
	}
	return Default(r.cfg.BaseURL, videoID)
}

// Default returns the fallback tier URL without probing.
func Default(baseURL, videoID string) string {
	return platform.ThumbnailURL(baseURL, videoID, platform.FallbackTier)
}

func (r *Resolver) probe(ctx context.Context, candidate string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return &enrich.NetworkError{URL: candidate, Err: fmt.Errorf("build request: %w", err)}
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return &enrich.NetworkError{URL: candidate, Err: err}
	}
	// Only the status matters; drop the body unread.
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &enrich.NetworkError{URL: candidate, StatusCode: resp.StatusCode}
	}
	return nil
}
