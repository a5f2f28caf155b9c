package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeEvent parses a {"recordId","sourceUrl"} payload. An empty sourceUrl is
// allowed; the pipeline records it as missing input.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev.RecordID = strings.TrimSpace(ev.RecordID)
	ev.SourceURL = strings.TrimSpace(ev.SourceURL)
	if ev.RecordID == "" {
		return Event{}, errors.New("decode event: recordId is required")
	}
	return ev, nil
}
