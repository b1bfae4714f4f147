// Package types defines the core data model shared by the store, the
// curator, and the API surface.
package types

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Source identifies where a memory came from.
type Source string

const (
	SourceClaudeCode    Source = "claude_code"
	SourceClaudeDesktop Source = "claude_desktop"
	SourceConsolidation Source = "consolidation"
)

// Complexity is a coarse difficulty rating attached by the caller or the curator.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// DefaultTitle is the placeholder used when a memory has no real title.
const DefaultTitle = "Untitled"

// Metadata holds the recognized metadata fields of a memory plus a residual
// map for extension fields. Recognized fields have names; everything else
// round-trips through Extra so callers can attach their own keys.
type Metadata struct {
	Title        string     `json:"title,omitempty"`
	Date         string     `json:"date,omitempty"`
	SessionDate  string     `json:"session_date,omitempty"`
	Source       Source     `json:"source,omitempty"`
	Technologies []string   `json:"technologies,omitempty"`
	Complexity   Complexity `json:"complexity,omitempty"`
	Project      string     `json:"project,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Memory is one stored (content, metadata) record.
type Memory struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// MaxContentLen bounds memory content size (chars).
const MaxContentLen = 50000

// ContentHash returns the MD5 hex digest of the raw content. Used for
// exact-duplicate grouping.
func (m *Memory) ContentHash() string {
	sum := md5.Sum([]byte(m.Content))
	return hex.EncodeToString(sum[:])
}

// TitleOrDefault returns the title, or DefaultTitle when unset.
func (md *Metadata) TitleOrDefault() string {
	if md.Title == "" {
		return DefaultTitle
	}
	return md.Title
}

// HasTitle reports whether a real (non-placeholder) title is present.
func (md *Metadata) HasTitle() bool {
	return md.Title != "" && md.Title != DefaultTitle
}

// DateString returns the date field, falling back to session_date.
// Empty string when neither is set.
func (md *Metadata) DateString() string {
	if md.Date != "" {
		return md.Date
	}
	return md.SessionDate
}

// GetExtra returns an extension field value.
func (md *Metadata) GetExtra(key string) string {
	return md.Extra[key]
}

// SetExtra sets an extension field, allocating the map on first use.
func (md *Metadata) SetExtra(key, value string) {
	if md.Extra == nil {
		md.Extra = make(map[string]string)
	}
	md.Extra[key] = value
}

// EncodeTechnologies serializes a technology list to JSON text for storage.
// A nil or empty list encodes as "[]".
func EncodeTechnologies(techs []string) string {
	if len(techs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(techs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeTechnologies parses technology JSON text from storage. Malformed or
// empty input yields an empty list, never an error — metadata in the store is
// user-authored and frequently sloppy.
func DecodeTechnologies(s string) []string {
	if s == "" {
		return nil
	}
	var techs []string
	if err := json.Unmarshal([]byte(s), &techs); err != nil {
		return nil
	}
	return techs
}

// dateLayouts are tried in order when parsing memory dates. The store never
// enforces a format, so be liberal.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses an ISO-ish date string. Returns ok=false for anything
// unparseable; callers treat that as "no date" rather than an error.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Tolerate a bare trailing Z on non-RFC3339 layouts.
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParsedDate returns the memory's date as a time, preferring date over
// session_date. ok=false when neither parses.
func (md *Metadata) ParsedDate() (time.Time, bool) {
	if t, ok := ParseDate(md.Date); ok {
		return t, true
	}
	return ParseDate(md.SessionDate)
}
