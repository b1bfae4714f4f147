package curator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/types"
)

// testNow is the fixed clock used across curator tests.
var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// setupCurator creates a curator over a temporary store with a fixed clock.
func setupCurator(t *testing.T) (*Curator, store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "memories.db"), embedding.NewMockEmbedder(32))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c := New(s, filepath.Join(t.TempDir(), "archive"))
	c.now = func() time.Time { return testNow }
	return c, s
}

func addMemory(t *testing.T, s store.Store, m *types.Memory) {
	t.Helper()
	if err := s.Add(m); err != nil {
		t.Fatalf("Add %s failed: %v", m.ID, err)
	}
}

// daysAgo formats a date n days before the test clock.
func daysAgo(n int) string {
	return testNow.AddDate(0, 0, -n).Format("2006-01-02")
}

func TestDeduplicate_KeepsFirstSeen(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{ID: "a", Content: "identical session notes"})
	addMemory(t, s, &types.Memory{ID: "b", Content: "identical session notes"})
	addMemory(t, s, &types.Memory{ID: "c", Content: "something else entirely"})

	result, err := c.Deduplicate(false)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}
	if result.GroupsFound != 1 || result.Removed != 1 {
		t.Errorf("groups=%d removed=%d, want 1/1", result.GroupsFound, result.Removed)
	}

	if _, err := s.Get("a"); err != nil {
		t.Error("first-seen memory should survive")
	}
	if _, err := s.Get("b"); err == nil {
		t.Error("later duplicate should be removed")
	}
	if _, err := s.Get("c"); err != nil {
		t.Error("unique memory should survive")
	}
}

func TestDeduplicate_DryRunDoesNotMutate(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{ID: "a", Content: "identical session notes"})
	addMemory(t, s, &types.Memory{ID: "b", Content: "identical session notes"})

	result, err := c.Deduplicate(true)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}
	if !result.DryRun || result.Removed != 1 {
		t.Errorf("dry run should still report removals: %+v", result)
	}

	n, _ := s.Count()
	if n != 2 {
		t.Errorf("dry run mutated the store: count = %d", n)
	}
}

func TestArchive_RemovesOldAndSnapshotsFirst(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{
		ID: "old", Content: "ancient notes",
		Metadata: types.Metadata{Title: "Old session", Date: daysAgo(200)},
	})
	addMemory(t, s, &types.Memory{
		ID: "recent", Content: "fresh notes",
		Metadata: types.Metadata{Date: daysAgo(5)},
	})
	addMemory(t, s, &types.Memory{
		ID: "undated", Content: "no date at all",
	})

	result, err := c.Archive(180, false)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if result.Archived != 1 {
		t.Fatalf("Archived = %d, want 1", result.Archived)
	}

	if _, err := s.Get("old"); err == nil {
		t.Error("old memory should be archived away")
	}
	if _, err := s.Get("recent"); err != nil {
		t.Error("recent memory should survive")
	}
	if _, err := s.Get("undated"); err != nil {
		t.Error("undated memory must never be archived")
	}

	// Snapshot exists and holds the removed entry.
	wantPath := filepath.Join(c.archiveDir, "archive_20250601.json")
	if result.SnapshotPath != wantPath {
		t.Errorf("snapshot path = %s, want %s", result.SnapshotPath, wantPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	var entries []StaleMemory
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "old" || entries[0].Title != "Old session" {
		t.Errorf("snapshot entries = %+v", entries)
	}
}

func TestArchive_DryRunDoesNotMutate(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{
		ID: "old", Content: "ancient notes",
		Metadata: types.Metadata{Date: daysAgo(365)},
	})

	result, err := c.Archive(180, true)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if result.Archived != 1 {
		t.Errorf("Archived = %d, want 1", result.Archived)
	}
	if result.SnapshotPath != "" {
		t.Error("dry run should not write a snapshot")
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("dry run mutated the store: count = %d", n)
	}
	if _, err := os.Stat(c.archiveDir); !os.IsNotExist(err) {
		t.Error("dry run should not create the archive dir")
	}
}

func TestEnhance_DerivesMissingMetadata(t *testing.T) {
	c, s := setupCurator(t)

	content := "Fixed the login redirect bug in the portal\n\n" +
		"The python backend returned the wrong status code, traced through flask middleware.\n"
	addMemory(t, s, &types.Memory{ID: "m1", Content: content})

	result, err := c.Enhance("m1")
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if len(result.AddedFields) != 3 {
		t.Fatalf("AddedFields = %v, want title/technologies/complexity", result.AddedFields)
	}

	m, _ := s.Get("m1")
	if m.Metadata.Title != "Fixed the login redirect bug in the portal" {
		t.Errorf("derived title = %q", m.Metadata.Title)
	}
	wantTechs := map[string]bool{"python": true, "flask": true}
	for _, tech := range m.Metadata.Technologies {
		if !wantTechs[tech] {
			t.Errorf("unexpected technology %q", tech)
		}
	}
	if len(m.Metadata.Technologies) != 2 {
		t.Errorf("technologies = %v", m.Metadata.Technologies)
	}
	if m.Metadata.Complexity != types.ComplexityLow {
		t.Errorf("complexity = %q, want low for short content", m.Metadata.Complexity)
	}
	if m.Metadata.GetExtra("enhanced_at") == "" {
		t.Error("enhanced_at stamp missing")
	}
}

func TestEnhance_Idempotent(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{
		ID:      "m1",
		Content: "Investigated the docker build cache misses on CI\n\nDetails follow.",
	})

	if _, err := c.Enhance("m1"); err != nil {
		t.Fatalf("first Enhance failed: %v", err)
	}
	before, _ := s.Get("m1")

	second, err := c.Enhance("m1")
	if err != nil {
		t.Fatalf("second Enhance failed: %v", err)
	}
	if len(second.AddedFields) != 0 {
		t.Errorf("second run added fields: %v", second.AddedFields)
	}

	after, _ := s.Get("m1")
	if after.Metadata.Title != before.Metadata.Title ||
		after.Metadata.GetExtra("enhanced_at") != before.Metadata.GetExtra("enhanced_at") {
		t.Error("second run should not modify metadata")
	}
}

func TestEnhance_NeverOverwrites(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{
		ID:      "m1",
		Content: "Worked through the react rendering issue in the dashboard widgets.",
		Metadata: types.Metadata{
			Title:      "Hand-written title",
			Complexity: types.ComplexityHigh,
		},
	})

	if _, err := c.Enhance("m1"); err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	m, _ := s.Get("m1")
	if m.Metadata.Title != "Hand-written title" {
		t.Errorf("title overwritten: %q", m.Metadata.Title)
	}
	if m.Metadata.Complexity != types.ComplexityHigh {
		t.Errorf("complexity overwritten: %q", m.Metadata.Complexity)
	}
}

func TestConsolidate_AdditiveMerge(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{
		ID: "s1", Content: "First session content",
		Metadata: types.Metadata{Title: "Session one", Date: "2025-05-01", Technologies: []string{"go", "sqlite"}},
	})
	addMemory(t, s, &types.Memory{
		ID: "s2", Content: "Second session content",
		Metadata: types.Metadata{Title: "Session two", Date: "2025-05-03", Technologies: []string{"go", "docker"}},
	})

	result, err := c.Consolidate([]string{"s1", "s2", "missing"}, "Sprint review")
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if result.Status != "ok" || result.MergedCount != 2 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.SkippedIDs) != 1 || result.SkippedIDs[0] != "missing" {
		t.Errorf("SkippedIDs = %v", result.SkippedIDs)
	}
	if result.DateRange != "2025-05-01 to 2025-05-03" {
		t.Errorf("DateRange = %q", result.DateRange)
	}

	// Sources survive; a new memory exists.
	for _, id := range []string{"s1", "s2"} {
		if _, err := s.Get(id); err != nil {
			t.Errorf("source %s should never be deleted", id)
		}
	}

	merged, err := s.Get(result.NewID)
	if err != nil {
		t.Fatalf("merged memory missing: %v", err)
	}
	if !strings.HasPrefix(merged.ID, "consolidated_") {
		t.Errorf("merged id = %q", merged.ID)
	}
	if merged.Metadata.Source != types.SourceConsolidation {
		t.Errorf("source = %q", merged.Metadata.Source)
	}
	if !strings.Contains(merged.Content, "## Session one (2025-05-01)") ||
		!strings.Contains(merged.Content, "\n---\n") {
		t.Errorf("merged content missing sections:\n%s", merged.Content)
	}

	// Technology union, sorted.
	want := []string{"docker", "go", "sqlite"}
	if len(merged.Metadata.Technologies) != len(want) {
		t.Fatalf("technologies = %v", merged.Metadata.Technologies)
	}
	for i, tech := range want {
		if merged.Metadata.Technologies[i] != tech {
			t.Errorf("technologies[%d] = %q, want %q", i, merged.Metadata.Technologies[i], tech)
		}
	}

	var from []string
	if err := json.Unmarshal([]byte(merged.Metadata.GetExtra("consolidated_from")), &from); err != nil || len(from) != 2 {
		t.Errorf("consolidated_from = %q", merged.Metadata.GetExtra("consolidated_from"))
	}
	if merged.Metadata.GetExtra("original_count") != "2" {
		t.Errorf("original_count = %q", merged.Metadata.GetExtra("original_count"))
	}
}

func TestConsolidate_NoResolvableIDs(t *testing.T) {
	c, s := setupCurator(t)

	result, err := c.Consolidate([]string{"ghost1", "ghost2"}, "")
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if result.Status != "not_found" {
		t.Errorf("status = %q, want not_found", result.Status)
	}
	if n, _ := s.Count(); n != 0 {
		t.Error("nothing should be created when no ids resolve")
	}
}

func TestAutoCurate_DryRunDoesNotMutate(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{ID: "a", Content: "duplicate body"})
	addMemory(t, s, &types.Memory{ID: "b", Content: "duplicate body"})
	addMemory(t, s, &types.Memory{
		ID: "old", Content: "long gone",
		Metadata: types.Metadata{Date: daysAgo(400)},
	})

	result := c.AutoCurate(true)
	if !result.DryRun {
		t.Error("DryRun flag not set")
	}
	if len(result.Actions) != 3 {
		t.Errorf("actions = %v, want dedupe/archive/enhance entries", result.Actions)
	}
	if n, _ := s.Count(); n != 3 {
		t.Errorf("dry run mutated the store: count = %d", n)
	}
}

func TestAutoCurate_Execute(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{ID: "a", Content: "duplicate body"})
	addMemory(t, s, &types.Memory{ID: "b", Content: "duplicate body"})
	addMemory(t, s, &types.Memory{
		ID: "old", Content: "long gone",
		Metadata: types.Metadata{Date: daysAgo(400)},
	})
	addMemory(t, s, &types.Memory{
		ID:      "sparse",
		Content: "Chased down the git submodule checkout failure on the release branch.",
	})

	c.AutoCurate(false)

	if _, err := s.Get("b"); err == nil {
		t.Error("duplicate should be removed")
	}
	if _, err := s.Get("old"); err == nil {
		t.Error("stale memory should be archived")
	}
	sparse, err := s.Get("sparse")
	if err != nil {
		t.Fatalf("sparse memory missing: %v", err)
	}
	if !sparse.Metadata.HasTitle() {
		t.Error("low-quality memory should have been enhanced")
	}
}

func TestAnalyzeHealth(t *testing.T) {
	c, s := setupCurator(t)

	addMemory(t, s, &types.Memory{
		ID: "m1", Content: "Error: connection refused while deploying",
		Metadata: types.Metadata{Title: "Deploy failure", Date: daysAgo(2), Technologies: []string{"docker"}},
	})
	addMemory(t, s, &types.Memory{ID: "m2", Content: "Pairing notes from the planning session"})

	health := c.AnalyzeHealth()
	if health["status"] != "ok" {
		t.Fatalf("status = %v", health["status"])
	}
	if health["total_memories"] != 2 {
		t.Errorf("total_memories = %v", health["total_memories"])
	}
	if _, ok := health["recommendations"].([]string); !ok {
		t.Error("recommendations missing")
	}
	insights, ok := health["key_insights"].([]string)
	if !ok || len(insights) == 0 {
		t.Error("key_insights missing")
	}
}
