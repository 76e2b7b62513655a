package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Prediction is one immutable history record returned by the server.
type Prediction struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	CreatedAt Timestamp `json:"created_at" yaml:"created_at"`
}

// Page is one page of the prediction history.
// NextPage equal to CurrentPage is the server's "no further pages" sentinel.
type Page struct {
	Items       []Prediction `json:"predictions" yaml:"predictions"`
	CurrentPage int          `json:"current_page" yaml:"current_page"`
	Total       int          `json:"total" yaml:"total"`
	NextPage    int          `json:"next_page" yaml:"next_page"`
}

// Last reports whether the server signalled that no page follows this one.
func (p Page) Last() bool {
	return len(p.Items) == 0 || p.NextPage == p.CurrentPage
}

// Result is the server's answer to a video submission.
type Result struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	CreatedAt Timestamp `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Timestamp accepts RFC3339 as well as the naive ISO-8601 forms Python backends emit.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// String renders the timestamp in local time, the way the history list shows it.
func (t Timestamp) String() string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// MarshalYAML keeps yaml output consistent with the JSON form.
func (t Timestamp) MarshalYAML() (any, error) {
	if t.IsZero() {
		return "", nil
	}
	return t.UTC().Format(time.RFC3339Nano), nil
}
