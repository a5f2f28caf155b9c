package ytdlp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// document is the subset of the tool's --dump-single-json output we rely on.
type document struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Duration    *float64 `json:"duration"`
	WebpageURL  string   `json:"webpage_url"`
	OriginalURL string   `json:"original_url"`
	Thumbnail   string   `json:"thumbnail"`
	Uploader    string   `json:"uploader"`
	Channel     string   `json:"channel"`
	Creator     string   `json:"creator"`
	UploadDate  string   `json:"upload_date"`
	Tags        []string `json:"tags"`
	Categories  []string `json:"categories"`
	ViewCount   *int64   `json:"view_count"`
}

// Decoded is the outcome of decoding tool output: either a Result or Err.
type Decoded struct {
	Result enrich.Result
	Err    error
}

// OK reports whether decoding produced a usable Result.
func (d Decoded) OK() bool { return d.Err == nil }

// Decode validates the tool's JSON document and normalizes it.
func Decode(data []byte) Decoded {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Decoded{Err: errors.New("decode tool output: empty document")}
	}
	if trimmed[0] != '{' {
		return Decoded{Err: errors.New("decode tool output: document is not a JSON object")}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return Decoded{Err: fmt.Errorf("decode tool output: %w", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Decoded{Err: errors.New("decode tool output: trailing data after document")}
	}
	if strings.TrimSpace(doc.Title) == "" {
		return Decoded{Err: errors.New("decode tool output: missing title")}
	}
	if doc.Duration != nil && (*doc.Duration < 0 || math.IsNaN(*doc.Duration)) {
		return Decoded{Err: fmt.Errorf("decode tool output: invalid duration %v", *doc.Duration)}
	}
	return Decoded{Result: doc.normalize()}
}

func (d document) normalize() enrich.Result {
	res := enrich.Result{
		Title:      strings.TrimSpace(d.Title),
		URL:        firstNonEmpty(d.WebpageURL, d.OriginalURL),
		Thumbnail:  d.Thumbnail,
		Creator:    firstNonEmpty(d.Uploader, d.Channel, d.Creator),
		UploadDate: d.UploadDate,
		Tags:       d.Tags,
		Categories: d.Categories,
		ViewCount:  d.ViewCount,
	}
	if d.Description != nil {
		res.Description = *d.Description
	}
	if d.Duration != nil {
		res.Duration = int(math.Round(*d.Duration))
	}
	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
