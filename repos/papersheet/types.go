package papersheet

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/xorcare/pointer"
)

// Entry is one row of the paper suggestion sheet.
type Entry struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Justification string     `json:"justification"`
	Presenter     string     `json:"presenter"`
	Presented     *bool      `json:"presented,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// rawEntry mirrors what the sheet script emits; ids may be numbers and flags
// may be strings.
type rawEntry struct {
	ID            json.RawMessage `json:"id"`
	URL           string          `json:"url"`
	Justification string          `json:"justification"`
	Presenter     string          `json:"presenter"`
	Presented     json.RawMessage `json:"presented"`
	Timestamp     json.RawMessage `json:"timestamp"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry{
		ID:            flexString(raw.ID),
		URL:           strings.TrimSpace(raw.URL),
		Justification: raw.Justification,
		Presenter:     raw.Presenter,
		Presented:     flexBool(raw.Presented),
		Timestamp:     flexTime(raw.Timestamp),
	}
	return nil
}

func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

func flexBool(raw json.RawMessage) *bool {
	s := strings.ToLower(flexString(raw))
	switch s {
	case "":
		return nil
	case "true", "yes", "y", "1", "x":
		return pointer.Bool(true)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return pointer.Bool(b)
	}
	return pointer.Bool(false)
}

func flexTime(raw json.RawMessage) *time.Time {
	s := flexString(raw)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pointer.Time(t)
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return pointer.Time(time.UnixMilli(ms).UTC())
	}
	return nil
}
