// Package curator implements collection hygiene over the memory store:
// quality scoring, duplicate detection, pattern analysis, consolidation,
// archival, and metadata enhancement. Every operation is a single
// read-analyze-write cycle with no state carried between calls.
package curator

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/types"
)

// techKeywords are matched against content when deriving missing
// technology metadata.
var techKeywords = []string{
	"python", "javascript", "typescript", "react", "flask", "sql",
	"html", "css", "node", "npm", "git", "docker",
}

// Curator runs curation operations against a store.
type Curator struct {
	store      store.Store
	archiveDir string
	now        func() time.Time // overridable for tests
}

// New creates a curator. archiveDir receives pre-delete snapshots from
// Archive runs.
func New(s store.Store, archiveDir string) *Curator {
	return &Curator{store: s, archiveDir: archiveDir, now: time.Now}
}

// AnalyzeHealth produces a full health report for the collection. It never
// returns an error; failures come back as an error payload so callers can
// always render something.
func (c *Curator) AnalyzeHealth() map[string]any {
	memories, err := c.store.GetAll()
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}

	dist := ScoreAll(memories)
	dupes := c.FindDuplicates(memories)
	patterns := c.AnalyzePatterns(memories, c.now())

	return map[string]any{
		"status":         "ok",
		"total_memories": len(memories),
		"quality":        dist,
		"duplicates": map[string]any{
			"exact_groups": len(dupes.ExactGroups),
			"exact_count":  dupes.ExactCount,
			"near_pairs":   len(dupes.NearPairs),
		},
		"patterns":        patterns,
		"recommendations": patterns.Recommendations,
		"key_insights":    keyInsights(memories, dist, patterns),
	}
}

// keyInsights distills the analysis into a few headline strings.
func keyInsights(memories []*types.Memory, dist QualityDistribution, patterns *PatternReport) []string {
	var insights []string
	if len(memories) == 0 {
		return []string{"No memories stored yet."}
	}
	insights = append(insights, fmt.Sprintf("%d memories, average quality %.2f", len(memories), dist.Average))
	if len(patterns.Technologies) > 0 {
		top := patterns.Technologies[0]
		insights = append(insights, fmt.Sprintf("Most common technology: %s (%d memories)", top.Technology, top.Count))
	}
	if patterns.Errors.Total > 0 {
		insights = append(insights, fmt.Sprintf("%d error-related memories (%.0f%% of collection)",
			patterns.Errors.Total, 100*float64(patterns.Errors.Total)/float64(len(memories))))
	}
	if patterns.StaleTotal > 0 {
		insights = append(insights, fmt.Sprintf("%d memories older than %d days", patterns.StaleTotal, staleDays))
	}
	return insights
}

// ConsolidateResult reports a consolidation run.
type ConsolidateResult struct {
	Status       string   `json:"status"` // "ok" or "not_found"
	NewID        string   `json:"new_id,omitempty"`
	Title        string   `json:"title,omitempty"`
	MergedCount  int      `json:"merged_count"`
	MergedIDs    []string `json:"merged_ids,omitempty"`
	SkippedIDs   []string `json:"skipped_ids,omitempty"`
	DateRange    string   `json:"date_range,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// Consolidate merges the given memories into one new memory. The sources are
// never deleted; the merged memory carries provenance metadata pointing back
// at them. When title is empty a generic one is derived.
func (c *Curator) Consolidate(ids []string, title string) (*ConsolidateResult, error) {
	var resolved []*types.Memory
	var skipped []string
	for _, id := range ids {
		m, err := c.store.Get(id)
		if err != nil {
			log.Printf("[curator] consolidate: skipping %s: %v", id, err)
			skipped = append(skipped, id)
			continue
		}
		resolved = append(resolved, m)
	}
	if len(resolved) == 0 {
		return &ConsolidateResult{Status: "not_found", SkippedIDs: skipped}, nil
	}

	var sections []string
	techSet := make(map[string]bool)
	var dates []string
	var mergedIDs []string
	for _, m := range resolved {
		date := m.Metadata.DateString()
		if date == "" {
			date = "unknown date"
		} else {
			dates = append(dates, date)
		}
		sections = append(sections, fmt.Sprintf("## %s (%s)\n%s\n", m.Metadata.TitleOrDefault(), date, m.Content))
		for _, tech := range m.Metadata.Technologies {
			techSet[tech] = true
		}
		mergedIDs = append(mergedIDs, m.ID)
	}

	content := strings.Join(sections, "\n---\n")

	var techs []string
	for tech := range techSet {
		techs = append(techs, tech)
	}
	sort.Strings(techs)

	var dateRange string
	if len(dates) > 0 {
		sort.Strings(dates)
		dateRange = fmt.Sprintf("%s to %s", dates[0], dates[len(dates)-1])
	}

	if title == "" {
		title = fmt.Sprintf("Consolidated: %d memories", len(resolved))
	}

	sum := md5.Sum([]byte(content))
	newID := "consolidated_" + hex.EncodeToString(sum[:])[:8]

	idsJSON, _ := json.Marshal(mergedIDs)
	merged := &types.Memory{
		ID:      newID,
		Content: content,
		Metadata: types.Metadata{
			Title:        title,
			Date:         c.now().UTC().Format("2006-01-02"),
			Source:       types.SourceConsolidation,
			Complexity:   types.ComplexityHigh,
			Technologies: techs,
		},
	}
	merged.Metadata.SetExtra("original_count", fmt.Sprintf("%d", len(resolved)))
	merged.Metadata.SetExtra("consolidated_from", string(idsJSON))
	merged.Metadata.SetExtra("consolidated_at", c.now().UTC().Format(time.RFC3339))
	if dateRange != "" {
		merged.Metadata.SetExtra("date_range", dateRange)
	}

	if err := c.store.Add(merged); err != nil {
		return nil, fmt.Errorf("add consolidated memory: %w", err)
	}

	log.Printf("[curator] consolidated %d memories into %s", len(resolved), newID)
	return &ConsolidateResult{
		Status:       "ok",
		NewID:        newID,
		Title:        title,
		MergedCount:  len(resolved),
		MergedIDs:    mergedIDs,
		SkippedIDs:   skipped,
		DateRange:    dateRange,
		Technologies: techs,
	}, nil
}

// ArchiveResult reports an archive run.
type ArchiveResult struct {
	DryRun       bool          `json:"dry_run"`
	CutoffDays   int           `json:"cutoff_days"`
	Archived     int           `json:"archived"`
	Sample       []StaleMemory `json:"sample"` // at most 5 entries
	SnapshotPath string        `json:"snapshot_path,omitempty"`
}

// Archive removes memories older than days, writing a JSON snapshot of the
// removed set to the archive directory before any delete happens. Memories
// without a parsable date are never archived. With dryRun set nothing is
// written or deleted.
func (c *Curator) Archive(days int, dryRun bool) (*ArchiveResult, error) {
	if days <= 0 {
		days = staleDays
	}
	memories, err := c.store.GetAll()
	if err != nil {
		return nil, err
	}

	cutoff := c.now().AddDate(0, 0, -days)
	var candidates []StaleMemory
	for _, m := range memories {
		ts, ok := m.Metadata.ParsedDate()
		if !ok || !ts.Before(cutoff) {
			continue
		}
		candidates = append(candidates, StaleMemory{
			ID:    m.ID,
			Date:  m.Metadata.DateString(),
			Title: m.Metadata.TitleOrDefault(),
		})
	}

	result := &ArchiveResult{
		DryRun:     dryRun,
		CutoffDays: days,
		Archived:   len(candidates),
		Sample:     capSample(candidates, 5),
	}
	if len(candidates) == 0 || dryRun {
		return result, nil
	}

	// Snapshot first. If the snapshot can't be written, nothing is deleted.
	if err := os.MkdirAll(c.archiveDir, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	snapshotPath := filepath.Join(c.archiveDir, fmt.Sprintf("archive_%s.json", c.now().Format("20060102")))
	data, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(snapshotPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	result.SnapshotPath = snapshotPath

	for _, cand := range candidates {
		if err := c.store.Delete(cand.ID); err != nil {
			log.Printf("[curator] archive: failed to delete %s: %v", cand.ID, err)
		}
	}

	log.Printf("[curator] archived %d memories older than %d days (snapshot: %s)",
		len(candidates), days, snapshotPath)
	return result, nil
}

func capSample(all []StaleMemory, max int) []StaleMemory {
	if len(all) > max {
		all = all[:max]
	}
	return append([]StaleMemory(nil), all...)
}

// EnhanceResult reports which metadata fields an enhance run filled in.
type EnhanceResult struct {
	ID          string   `json:"id"`
	AddedFields []string `json:"added_fields"`
}

// Enhance derives missing metadata for one memory from its content. Existing
// fields are never overwritten, so running it twice adds nothing the second
// time.
func (c *Curator) Enhance(id string) (*EnhanceResult, error) {
	m, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}

	md := m.Metadata
	var added []string

	if !md.HasTitle() {
		if title := deriveTitle(m.Content); title != "" {
			md.Title = title
			added = append(added, "title")
		}
	}
	if len(md.Technologies) == 0 {
		if techs := deriveTechnologies(m.Content); len(techs) > 0 {
			md.Technologies = techs
			added = append(added, "technologies")
		}
	}
	if md.Complexity == "" {
		md.Complexity = deriveComplexity(m.Content)
		added = append(added, "complexity")
	}

	if len(added) == 0 {
		return &EnhanceResult{ID: id}, nil
	}

	md.SetExtra("enhanced_at", c.now().UTC().Format(time.RFC3339))
	if err := c.store.UpdateMetadata(id, md); err != nil {
		return nil, fmt.Errorf("update metadata: %w", err)
	}

	log.Printf("[curator] enhanced %s: added %s", id, strings.Join(added, ", "))
	return &EnhanceResult{ID: id, AddedFields: added}, nil
}

// deriveTitle picks the first line that looks like a headline: long enough
// to carry meaning, short enough to be a title.
func deriveTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if len(line) > 10 && len(line) < 100 {
			if len(line) > 80 {
				line = line[:80]
			}
			return line
		}
	}
	return ""
}

func deriveTechnologies(content string) []string {
	c := strings.ToLower(content)
	var techs []string
	for _, kw := range techKeywords {
		if strings.Contains(c, kw) {
			techs = append(techs, kw)
		}
	}
	return techs
}

func deriveComplexity(content string) types.Complexity {
	switch {
	case len(content) > 1000 || strings.Contains(content, "```"):
		return types.ComplexityHigh
	case len(content) > 500:
		return types.ComplexityMedium
	default:
		return types.ComplexityLow
	}
}

const (
	autoCurateArchiveDays = 180
	autoCurateEnhanceCap  = 20
	autoCurateEnhanceMax  = 0.5 // only memories scoring below this get enhanced
)

// AutoCurateResult reports a full auto-curation pass.
type AutoCurateResult struct {
	DryRun  bool     `json:"dry_run"`
	Actions []string `json:"actions"`
}

// AutoCurate runs the standard maintenance sequence: deduplicate, archive
// anything older than 180 days, then enhance the lowest-scoring memories.
// Individual step failures are logged and skipped so one bad step doesn't
// abort the pass.
func (c *Curator) AutoCurate(dryRun bool) *AutoCurateResult {
	result := &AutoCurateResult{DryRun: dryRun}
	logf := func(format string, args ...any) {
		result.Actions = append(result.Actions, fmt.Sprintf(format, args...))
	}

	if dedupe, err := c.Deduplicate(dryRun); err != nil {
		log.Printf("[curator] auto-curate: dedupe failed: %v", err)
		logf("deduplicate: failed (%v)", err)
	} else {
		logf("deduplicate: %d groups, %d removed", dedupe.GroupsFound, dedupe.Removed)
	}

	if archive, err := c.Archive(autoCurateArchiveDays, dryRun); err != nil {
		log.Printf("[curator] auto-curate: archive failed: %v", err)
		logf("archive: failed (%v)", err)
	} else {
		logf("archive: %d memories older than %d days", archive.Archived, archive.CutoffDays)
	}

	enhanced, attempted := c.enhanceLowQuality(dryRun)
	logf("enhance: %d of %d low-quality memories enhanced", enhanced, attempted)

	return result
}

// enhanceLowQuality enhances up to autoCurateEnhanceCap memories, lowest
// quality score first, considering only those below autoCurateEnhanceMax.
func (c *Curator) enhanceLowQuality(dryRun bool) (enhanced, attempted int) {
	memories, err := c.store.GetAll()
	if err != nil {
		log.Printf("[curator] auto-curate: enhance scan failed: %v", err)
		return 0, 0
	}

	type scored struct {
		id    string
		score float64
	}
	var low []scored
	for _, m := range memories {
		if s := QualityScore(m); s < autoCurateEnhanceMax {
			low = append(low, scored{id: m.ID, score: s})
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].score < low[j].score })
	if len(low) > autoCurateEnhanceCap {
		low = low[:autoCurateEnhanceCap]
	}

	for _, s := range low {
		attempted++
		if dryRun {
			continue
		}
		res, err := c.Enhance(s.id)
		if err != nil {
			log.Printf("[curator] auto-curate: enhance %s failed: %v", s.id, err)
			continue
		}
		if len(res.AddedFields) > 0 {
			enhanced++
		}
	}
	return enhanced, attempted
}
