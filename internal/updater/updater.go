// Package updater merges extraction results into catalog records.
//
// Text fields are placeholder-aware while duration and thumbnail only check
// for a zero value. The asymmetry is long-standing behavior and is kept.
package updater

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/platform"
)

// Defaults for the merge policy.
const (
	DefaultPlaceholder = "Loading..."
	DefaultMaxTags     = 20
)

// Config controls the merge policy.
type Config struct {
	Placeholder string
	MaxTags     int
}

// Updater computes the terminal field-level update for a record.
type Updater struct {
	cfg Config
}

// New constructs an Updater.
func New(cfg Config) *Updater {
	if cfg.Placeholder == "" {
		cfg.Placeholder = DefaultPlaceholder
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = DefaultMaxTags
	}
	return &Updater{cfg: cfg}
}

// Build returns the update that merges res into rec. It is safe to apply
// more than once: re-running it against its own output changes nothing.
func (u *Updater) Build(rec enrich.Record, res enrich.Result, extractedAt time.Time) enrich.RecordUpdate {
	update := enrich.RecordUpdate{
		Title:        ptr(u.keepText(rec.Title, res.Title)),
		Description:  ptr(u.keepText(rec.Description, res.Description)),
		Creator:      ptr(u.keepText(rec.Creator, res.Creator)),
		Duration:     ptr(keepNonZero(rec.Duration, res.Duration)),
		ThumbnailURL: ptr(keepNonZero(rec.ThumbnailURL, res.Thumbnail)),
	}

	if rec.SourceType == "" {
		update.SourceType = ptr(platform.Detect(rec.SourceURL))
	}
	if rec.SourceID == "" {
		if id, ok := platform.VideoID(rec.SourceURL); ok {
			update.SourceID = ptr(id)
		}
	}
	if date, ok := FormatUploadDate(res.UploadDate); ok {
		update.PublicationDate = ptr(date)
	}
	if len(rec.Tags) == 0 {
		update.Tags = ptr(u.capTags(res.Tags))
	}

	if res.EnrichmentFailed {
		update.MetadataStatus = ptr(enrich.StatusFailed)
		update.EnrichmentFailed = ptr(true)
		update.EnrichmentError = ptr(res.ErrorMessage)
	} else {
		update.MetadataStatus = ptr(enrich.StatusEnriched)
		update.EnrichmentFailed = ptr(false)
		update.EnrichmentError = ptr("")
	}

	if rec.Metadata != nil && sameRaw(rec.Metadata.Raw, res) {
		extractedAt = rec.Metadata.ExtractedAt
	}
	update.Metadata = &enrich.Metadata{Raw: res, ExtractedAt: extractedAt}
	return update
}

// FormatUploadDate turns YYYYMMDD into YYYY-MM-DD. The date is not validated
// beyond being eight digits.
func FormatUploadDate(raw string) (string, bool) {
	if len(raw) != 8 {
		return "", false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8], true
}

// sameRaw compares results by their stored JSON form, so a result read back
// from the store matches the one that produced it.
func sameRaw(stored, fresh enrich.Result) bool {
	a, err := json.Marshal(stored)
	if err != nil {
		return false
	}
	b, err := json.Marshal(fresh)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (u *Updater) keepText(existing, extracted string) string {
	if strings.TrimSpace(existing) != "" && existing != u.cfg.Placeholder {
		return existing
	}
	return extracted
}

func (u *Updater) capTags(tags []string) []string {
	if len(tags) > u.cfg.MaxTags {
		tags = tags[:u.cfg.MaxTags]
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

func keepNonZero[T comparable](existing, extracted T) T {
	var zero T
	if existing != zero {
		return existing
	}
	return extracted
}

func ptr[T any](v T) *T { return &v }
