// Package enrich defines the core types shared by the metadata enrichment pipeline.
package enrich

import "time"

// Status is the pipeline-owned lifecycle state of a catalog record.
type Status string

// Metadata status values persisted on the catalog record.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusEnriched   Status = "enriched"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends a pipeline run.
func (s Status) Terminal() bool {
	return s == StatusEnriched || s == StatusFailed
}

// Record is one curated catalog item as owned by the external record store.
type Record struct {
	ID               string    `json:"id"`
	SourceURL        string    `json:"sourceUrl"`
	SourceType       string    `json:"sourceType,omitempty"`
	SourceID         string    `json:"sourceId,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Duration         int       `json:"duration"`
	ThumbnailURL     string    `json:"thumbnailUrl"`
	Creator          string    `json:"creator"`
	PublicationDate  string    `json:"publicationDate,omitempty"`
	Tags             []string  `json:"tags"`
	MetadataStatus   Status    `json:"metadataStatus"`
	EnrichmentFailed bool      `json:"enrichmentFailed"`
	EnrichmentError  string    `json:"enrichmentError,omitempty"`
	Metadata         *Metadata `json:"metadata,omitempty"`
}

// Metadata holds the pipeline's raw extraction payload.
type Metadata struct {
	Raw         Result    `json:"raw"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// Result is the normalized extraction result produced by a Strategy.
type Result struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Duration         int      `json:"duration"`
	URL              string   `json:"url"`
	Thumbnail        string   `json:"thumbnail"`
	Creator          string   `json:"creator"`
	UploadDate       string   `json:"uploadDate,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Categories       []string `json:"categories,omitempty"`
	ViewCount        *int64   `json:"viewCount,omitempty"`
	EnrichmentFailed bool     `json:"enrichmentFailed,omitempty"`
	ErrorMessage     string   `json:"errorMessage,omitempty"`
}

// RecordUpdate is a field-level partial update. Nil fields are left untouched.
type RecordUpdate struct {
	SourceType       *string
	SourceID         *string
	Title            *string
	Description      *string
	Duration         *int
	ThumbnailURL     *string
	Creator          *string
	PublicationDate  *string
	Tags             *[]string
	MetadataStatus   *Status
	EnrichmentFailed *bool
	EnrichmentError  *string
	Metadata         *Metadata
}

// Empty reports whether the update touches no field.
func (u RecordUpdate) Empty() bool {
	return u == RecordUpdate{}
}

// ApplyTo returns a copy of rec with every set field of u written over it.
func (u RecordUpdate) ApplyTo(rec Record) Record {
	if u.SourceType != nil {
		rec.SourceType = *u.SourceType
	}
	if u.SourceID != nil {
		rec.SourceID = *u.SourceID
	}
	if u.Title != nil {
		rec.Title = *u.Title
	}
	if u.Description != nil {
		rec.Description = *u.Description
	}
	if u.Duration != nil {
		rec.Duration = *u.Duration
	}
	if u.ThumbnailURL != nil {
		rec.ThumbnailURL = *u.ThumbnailURL
	}
	if u.Creator != nil {
		rec.Creator = *u.Creator
	}
	if u.PublicationDate != nil {
		rec.PublicationDate = *u.PublicationDate
	}
	if u.Tags != nil {
		rec.Tags = append([]string{}, (*u.Tags)...)
	}
	if u.MetadataStatus != nil {
		rec.MetadataStatus = *u.MetadataStatus
	}
	if u.EnrichmentFailed != nil {
		rec.EnrichmentFailed = *u.EnrichmentFailed
	}
	if u.EnrichmentError != nil {
		rec.EnrichmentError = *u.EnrichmentError
	}
	if u.Metadata != nil {
		md := *u.Metadata
		rec.Metadata = &md
	}
	return rec
}

// StatusUpdate builds an update that only moves metadataStatus.
func StatusUpdate(status Status) RecordUpdate {
	return RecordUpdate{MetadataStatus: &status}
}

// FailureUpdate builds the terminal failure write carrying msg.
func FailureUpdate(msg string) RecordUpdate {
	status := StatusFailed
	failed := true
	return RecordUpdate{
		MetadataStatus:   &status,
		EnrichmentFailed: &failed,
		EnrichmentError:  &msg,
	}
}

// Event is a record-created trigger delivered at least once.
type Event struct {
	RecordID  string `json:"recordId"`
	SourceURL string `json:"sourceUrl"`
}
