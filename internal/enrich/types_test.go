package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordUpdateApplyTo(t *testing.T) {
	t.Parallel()

	title := "Example Title"
	tags := []string{"music"}
	status := StatusEnriched
	extracted := time.Unix(1700000000, 0).UTC()
	update := RecordUpdate{
		Title:          &title,
		Tags:           &tags,
		MetadataStatus: &status,
		Metadata:       &Metadata{Raw: Result{Title: title}, ExtractedAt: extracted},
	}

	rec := update.ApplyTo(Record{ID: "r1", Title: "Loading...", Duration: 30})

	require.Equal(t, "Example Title", rec.Title)
	require.Equal(t, 30, rec.Duration)
	require.Equal(t, []string{"music"}, rec.Tags)
	require.Equal(t, StatusEnriched, rec.MetadataStatus)
	require.Equal(t, extracted, rec.Metadata.ExtractedAt)

	tags[0] = "mutated"
	require.Equal(t, "music", rec.Tags[0], "ApplyTo must copy tags")
}

func TestFailureUpdate(t *testing.T) {
	t.Parallel()

	rec := FailureUpdate("boom").ApplyTo(Record{MetadataStatus: StatusProcessing})
	require.Equal(t, StatusFailed, rec.MetadataStatus)
	require.True(t, rec.EnrichmentFailed)
	require.Equal(t, "boom", rec.EnrichmentError)
	require.True(t, rec.MetadataStatus.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.True(t, RecordUpdate{}.Empty())
}
