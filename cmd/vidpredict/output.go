package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"vidpredict/internal/prediction"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func parseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", formatText:
		return formatText, nil
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// emit writes v as JSON or YAML. It reports false for text output so the
// caller renders its own human-readable form.
func emit(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

// historyOutput is the structured form of one history listing.
type historyOutput struct {
	Predictions []prediction.Prediction `json:"predictions" yaml:"predictions"`
	Page        int                     `json:"page,omitempty" yaml:"page,omitempty"`
	NextPage    int                     `json:"next_page,omitempty" yaml:"next_page,omitempty"`
	Total       int                     `json:"total,omitempty" yaml:"total,omitempty"`
	Exhausted   bool                    `json:"exhausted" yaml:"exhausted"`
	Offline     bool                    `json:"offline,omitempty" yaml:"offline,omitempty"`
}

func printPredictions(w io.Writer, items []prediction.Prediction) {
	for _, p := range items {
		text := strings.Join(strings.Fields(p.Text), " ")
		fmt.Fprintf(w, "%s  %s\n", p.CreatedAt.String(), text)
	}
}

func printKV(w io.Writer, rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, r[0]+":", r[1])
	}
}
