// Package ytdlp runs the external extraction tool and normalizes its output.
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/platform"
)

var commandContext = exec.CommandContext

// Name labels this strategy in logs and metrics.
const Name = "ytdlp"

// DefaultUserAgent is presented to upstream hosts by the tool.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// ToolLocator returns a verified path to the extraction binary.
type ToolLocator interface {
	Ensure(ctx context.Context) (string, error)
}

// Config controls how the tool is invoked.
type Config struct {
	UserAgent     string
	CacheDir      string
	ArchivePrefix string
}

// Extractor is the primary extraction strategy.
type Extractor struct {
	tool    ToolLocator
	thumbs  enrich.ThumbnailResolver
	archive enrich.BlobStore
	hasher  enrich.Hasher
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Extractor. archive and hasher may be nil to skip raw archiving.
func New(
	tool ToolLocator,
	thumbs enrich.ThumbnailResolver,
	archive enrich.BlobStore,
	hasher enrich.Hasher,
	cfg Config,
	logger *zap.Logger,
) *Extractor {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "/tmp/enricher-cache"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "raw"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		tool:    tool,
		thumbs:  thumbs,
		archive: archive,
		hasher:  hasher,
		cfg:     cfg,
		logger:  logger,
	}
}

// Name implements enrich.Strategy.
func (e *Extractor) Name() string { return Name }

// Applies implements enrich.Strategy; the tool is tried for every URL.
func (e *Extractor) Applies(string) bool { return true }

// Extract runs the tool once against sourceURL. There is no internal retry.
func (e *Extractor) Extract(ctx context.Context, sourceURL string) (enrich.Result, error) {
	binary, err := e.tool.Ensure(ctx)
	if err != nil {
		return enrich.Result{}, e.fail(sourceURL, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, binary, e.args(sourceURL)...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return enrich.Result{}, e.fail(sourceURL, fmt.Errorf("tool run aborted: %w", ctxErr))
		}
		return enrich.Result{}, e.fail(sourceURL, fmt.Errorf("tool exited: %w (stderr: %s)", err, truncate(stderr.String(), 512)))
	}

	decoded := Decode(stdout.Bytes())
	if !decoded.OK() {
		return enrich.Result{}, e.fail(sourceURL, decoded.Err)
	}
	e.archiveRaw(ctx, sourceURL, stdout.Bytes())

	res := decoded.Result
	if platform.IsRecognized(sourceURL) && e.thumbs != nil {
		// The tool's own thumbnail is often stale or the wrong size.
		if id, ok := platform.VideoID(sourceURL); ok {
			res.Thumbnail = e.thumbs.Resolve(ctx, id)
		}
	}
	return res, nil
}

func (e *Extractor) args(sourceURL string) []string {
	return []string{
		"--skip-download",
		"--dump-single-json",
		"--no-warnings",
		"--quiet",
		"--no-check-certificates",
		"--prefer-free-formats",
		"--user-agent", e.cfg.UserAgent,
		"--cache-dir", e.cfg.CacheDir,
		sourceURL,
	}
}

func (e *Extractor) archiveRaw(ctx context.Context, sourceURL string, raw []byte) {
	if e.archive == nil || e.hasher == nil {
		return
	}
	key, err := e.hasher.Hash([]byte(sourceURL))
	if err != nil {
		e.logger.Warn("hash source url failed", zap.String("url", sourceURL), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s.json", strings.Trim(e.cfg.ArchivePrefix, "/"), key)
	uri, err := e.archive.PutObject(ctx, path, "application/json", bytes.NewReader(raw))
	if err != nil {
		e.logger.Warn("archive raw tool output failed", zap.String("url", sourceURL), zap.Error(err))
		return
	}
	e.logger.Debug("raw tool output archived", zap.String("url", sourceURL), zap.String("uri", uri))
}

func (e *Extractor) fail(sourceURL string, err error) error {
	return &enrich.ExtractionError{Strategy: Name, URL: sourceURL, Err: err}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
