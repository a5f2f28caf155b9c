package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeNormalizesDocument(t *testing.T) {
	t.Parallel()

	out := Decode([]byte(`{
		"id": "dQw4w9WgXcQ",
		"title": "Example Title",
		"description": "desc",
		"duration": 212.4,
		"webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/sddefault.jpg",
		"uploader": "",
		"channel": "Rick Astley",
		"upload_date": "20091025",
		"tags": ["music", "80s"],
		"categories": ["Music"],
		"view_count": 1500000000,
		"formats": [{"format_id": "18"}]
	}`))

	require.True(t, out.OK(), "unexpected error: %v", out.Err)
	res := out.Result
	require.Equal(t, "Example Title", res.Title)
	require.Equal(t, "desc", res.Description)
	require.Equal(t, 212, res.Duration)
	require.Equal(t, "Rick Astley", res.Creator)
	require.Equal(t, "20091025", res.UploadDate)
	require.Equal(t, []string{"music", "80s"}, res.Tags)
	require.Equal(t, []string{"Music"}, res.Categories)
	require.NotNil(t, res.ViewCount)
	require.EqualValues(t, 1500000000, *res.ViewCount)
	require.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", res.URL)
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "  ", "empty document"},
		{"not object", `["a"]`, "not a JSON object"},
		{"syntax", `{"title": `, "decode tool output"},
		{"wrong type", `{"title": "x", "duration": "long"}`, "decode tool output"},
		{"two documents", `{"title":"a"}{"title":"b"}`, "trailing data"},
		{"missing title", `{"id":"abc","duration":10}`, "missing title"},
		{"negative duration", `{"title":"a","duration":-1}`, "invalid duration"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := Decode([]byte(tc.input))
			require.False(t, out.OK())
			require.ErrorContains(t, out.Err, tc.want)
		})
	}
}

func TestDecodeToleratesNullFields(t *testing.T) {
	t.Parallel()

	out := Decode([]byte(`{"title":"Live","duration":null,"description":null,"view_count":null}`))
	require.True(t, out.OK())
	require.Zero(t, out.Result.Duration)
	require.Empty(t, out.Result.Description)
	require.Nil(t, out.Result.ViewCount)
}
