// Package tool locates, installs and verifies the metadata extraction binary.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
)

var commandContext = exec.CommandContext

// Defaults for the yt-dlp release channel.
const (
	DefaultBinary     = "yt-dlp"
	DefaultReleaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp"
	DefaultInstallDir = "/tmp/enricher-bin"
)

// Config controls where the tool is looked up and installed.
type Config struct {
	Binary       string
	InstallDir   string
	ReleaseURL   string
	ProbeTimeout time.Duration
}

// Info describes a working tool binary.
type Info struct {
	Path    string
	Version string
}

// Bootstrap resolves a usable tool path, installing the binary when needed.
type Bootstrap struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu       sync.Mutex
	resolved string
}

// New constructs a Bootstrap. A nil client gets http.DefaultClient.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Bootstrap {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.InstallDir == "" {
		cfg.InstallDir = DefaultInstallDir
	}
	if cfg.ReleaseURL == "" {
		cfg.ReleaseURL = DefaultReleaseURL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{cfg: cfg, client: client, logger: logger}
}

// Ensure returns a verified tool path. A path that probed successfully is
// remembered for later runs in the same process.
func (b *Bootstrap) Ensure(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resolved != "" {
		return b.resolved, nil
	}

	info, probeErr := b.Probe(ctx, b.cfg.Binary)
	if probeErr == nil {
		b.logger.Debug("extraction tool found", zap.String("path", info.Path), zap.String("version", info.Version))
		b.resolved = info.Path
		return b.resolved, nil
	}

	if installed := b.installedPath(); installed != b.cfg.Binary {
		if _, statErr := os.Stat(installed); statErr == nil {
			info, err := b.Probe(ctx, installed)
			if err == nil {
				b.logger.Debug("using previously installed tool", zap.String("path", info.Path), zap.String("version", info.Version))
				b.resolved = info.Path
				return b.resolved, nil
			}
			b.logger.Warn("installed tool does not run, reinstalling", zap.String("path", installed), zap.Error(err))
		}
	}
	b.logger.Info("extraction tool not available, installing", zap.String("binary", b.cfg.Binary), zap.Error(probeErr))

	path, installErr := b.Install(ctx)
	metrics.ObserveToolInstall(installErr == nil)
	if installErr != nil {
		return "", &enrich.ToolUnavailableError{ProbeErr: probeErr, InstallErr: installErr}
	}
	b.resolved = path
	return path, nil
}

// Probe runs the binary with --version.
func (b *Bootstrap) Probe(ctx context.Context, binary string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, binary, "--version") //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("run %s --version: %w (stderr: %s)", binary, err, strings.TrimSpace(stderr.String()))
	}
	version := strings.TrimSpace(stdout.String())
	if version == "" {
		return Info{}, fmt.Errorf("run %s --version: empty output", binary)
	}
	return Info{Path: binary, Version: version}, nil
}

// Install downloads the latest release into the install directory, marks it
// executable and re-probes it.
func (b *Bootstrap) Install(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.cfg.InstallDir, 0o750); err != nil {
		return "", fmt.Errorf("create install dir: %w", err)
	}
	target := b.installedPath()

	if err := b.download(ctx, target); err != nil {
		return "", err
	}
	if err := os.Chmod(target, 0o755); err != nil { //nolint:gosec // must be executable
		return "", fmt.Errorf("chmod tool: %w", err)
	}

	info, err := b.Probe(ctx, target)
	if err != nil {
		return "", fmt.Errorf("verify installed tool: %w", err)
	}
	b.logger.Info("extraction tool installed", zap.String("path", info.Path), zap.String("version", info.Version))
	return info.Path, nil
}

func (b *Bootstrap) installedPath() string {
	return filepath.Join(b.cfg.InstallDir, filepath.Base(DefaultBinary))
}

func (b *Bootstrap) download(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.ReleaseURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return &enrich.NetworkError{URL: b.cfg.ReleaseURL, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	if resp.StatusCode != http.StatusOK {
		return &enrich.NetworkError{URL: b.cfg.ReleaseURL, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		closeErr := tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Join(fmt.Errorf("write tool: %w", err), closeErr)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close tool file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("move tool into place: %w", err)
	}
	return nil
}
