// Package models defines the catalog types shared by the search packages.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SortDirection is the ordering requested from the query service.
type SortDirection string

const (
	Ascending  SortDirection = "ascending"
	Descending SortDirection = "descending"
)

// Valid reports whether d is a known direction.
func (d SortDirection) Valid() bool {
	return d == Ascending || d == Descending
}

// ParseSortDirection accepts the wire names plus the arrow shorthands used
// by the web UI ("^" ascending, "v" descending).
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascending", "asc", "^":
		return Ascending, nil
	case "descending", "desc", "v":
		return Descending, nil
	}
	return "", fmt.Errorf("models: unknown sort direction %q", s)
}

// ResultRow is one catalog entry as returned by the query service. Fields are
// kept as raw JSON and passed through untouched.
type ResultRow struct {
	Title    json.RawMessage `json:"title"`
	Channel  json.RawMessage `json:"channel"`
	Start    json.RawMessage `json:"start"`
	Duration json.RawMessage `json:"duration"`
	Topic    json.RawMessage `json:"topic"`
}

// Text renders the named field for display. JSON strings are unquoted, any
// other value is shown verbatim.
func (r ResultRow) Text(field string) string {
	var raw json.RawMessage
	switch field {
	case "title":
		raw = r.Title
	case "channel":
		raw = r.Channel
	case "start":
		raw = r.Start
	case "duration":
		raw = r.Duration
	case "topic":
		raw = r.Topic
	}
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
