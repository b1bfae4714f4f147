package types

import (
	"testing"
)

func TestContentHash_StableAndDistinct(t *testing.T) {
	a := &Memory{ID: "a", Content: "same content"}
	b := &Memory{ID: "b", Content: "same content"}
	c := &Memory{ID: "c", Content: "different content"}

	if a.ContentHash() != b.ContentHash() {
		t.Error("identical content should hash identically")
	}
	if a.ContentHash() == c.ContentHash() {
		t.Error("different content should hash differently")
	}
}

func TestTechnologies_RoundTrip(t *testing.T) {
	techs := []string{"go", "sqlite", "ollama"}
	encoded := EncodeTechnologies(techs)
	decoded := DecodeTechnologies(encoded)

	if len(decoded) != 3 || decoded[0] != "go" || decoded[2] != "ollama" {
		t.Errorf("round trip failed: %v", decoded)
	}
}

func TestDecodeTechnologies_Malformed(t *testing.T) {
	cases := []string{"", "not json", "{\"a\":1}", "[1,2,3]", "[\"unterminated"}
	for _, c := range cases {
		if got := DecodeTechnologies(c); len(got) != 0 {
			t.Errorf("DecodeTechnologies(%q) = %v, want empty", c, got)
		}
	}
}

func TestEncodeTechnologies_Empty(t *testing.T) {
	if got := EncodeTechnologies(nil); got != "[]" {
		t.Errorf("EncodeTechnologies(nil) = %q, want []", got)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-06-01", true},
		{"2025-06-01T12:30:00Z", true},
		{"2025-06-01T12:30:00+02:00", true},
		{"2025-06-01 12:30:00", true},
		{"2025-06-01T12:30:00", true},
		{"not a date", false},
		{"", false},
		{"06/01/2025", false},
	}

	for _, c := range cases {
		_, ok := ParseDate(c.in)
		if ok != c.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", c.in, ok, c.ok)
		}
	}
}

func TestMetadata_DateFallback(t *testing.T) {
	md := Metadata{SessionDate: "2025-03-10"}
	if md.DateString() != "2025-03-10" {
		t.Errorf("expected session_date fallback, got %q", md.DateString())
	}

	md.Date = "2025-04-01"
	if md.DateString() != "2025-04-01" {
		t.Errorf("date should take precedence, got %q", md.DateString())
	}

	if ts, ok := md.ParsedDate(); !ok || ts.Year() != 2025 || ts.Month() != 4 {
		t.Errorf("ParsedDate = %v ok=%v", ts, ok)
	}
}

func TestMetadata_HasTitle(t *testing.T) {
	md := Metadata{}
	if md.HasTitle() {
		t.Error("empty title should not count")
	}
	md.Title = DefaultTitle
	if md.HasTitle() {
		t.Error("placeholder title should not count")
	}
	md.Title = "Fixing the websocket reconnect loop"
	if !md.HasTitle() {
		t.Error("real title should count")
	}
}
