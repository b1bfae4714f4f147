package curator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/memkeep/memkeep/internal/types"
)

const (
	// staleDays is the default age beyond which a memory counts as stale.
	staleDays = 90

	// staleListCap bounds the stale-memory listing in analysis output.
	staleListCap = 20

	// errorScanCap bounds how many error memories feed message mining.
	errorScanCap = 50

	// candidateCap bounds consolidation candidates per analysis.
	candidateCap = 10

	// candidateMemberCap bounds member ids listed per candidate.
	candidateMemberCap = 5
)

// errorTerms mark a memory as error-related when any appears in its content.
var errorTerms = []string{"error", "failed", "exception", "bug", "issue"}

// errorMessageRe mines error messages out of content. Captures 20-100 chars
// after "error:" or "error " up to end of line.
var errorMessageRe = regexp.MustCompile(`(?i)error[:\s]+([^\n]{20,100})`)

// nonAlnumRe collapses titles into comparable keys.
var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// ErrorPatterns summarizes error-related memories.
type ErrorPatterns struct {
	Total             int            `json:"total"`
	ByType            map[string]int `json:"by_type"`
	RecurringMessages []string       `json:"recurring_messages"` // top 5 repeated fragments
}

// TechCount is one entry of the technology distribution.
type TechCount struct {
	Technology string `json:"technology"`
	Count      int    `json:"count"`
}

// StaleMemory identifies a memory past the staleness cutoff.
type StaleMemory struct {
	ID    string `json:"id"`
	Date  string `json:"date"`
	Title string `json:"title"`
}

// ConsolidationCandidate is a group of memories that look mergeable.
type ConsolidationCandidate struct {
	Reason string   `json:"reason"` // "similar_titles" or "same_day"
	Key    string   `json:"key"`
	Count  int      `json:"count"`
	IDs    []string `json:"ids"` // at most candidateMemberCap
}

// PatternReport is the full pattern analysis over a collection.
type PatternReport struct {
	Errors          ErrorPatterns            `json:"errors"`
	Technologies    []TechCount              `json:"technologies"` // top 10
	Stale           []StaleMemory            `json:"stale"`        // capped
	StaleTotal      int                      `json:"stale_total"`
	AgeBuckets      map[string]int           `json:"age_buckets"`
	Candidates      []ConsolidationCandidate `json:"consolidation_candidates"`
	Recommendations []string                 `json:"recommendations"`
}

// AnalyzePatterns runs every pattern detector over the given memories.
func (c *Curator) AnalyzePatterns(memories []*types.Memory, now time.Time) *PatternReport {
	report := &PatternReport{
		Errors:       analyzeErrors(memories),
		Technologies: technologyDistribution(memories),
		AgeBuckets:   ageBuckets(memories, now),
		Candidates:   consolidationCandidates(memories),
	}
	report.Stale, report.StaleTotal = staleMemories(memories, now, staleDays)
	report.Recommendations = c.recommendations(memories, report)
	return report
}

func isErrorMemory(m *types.Memory) bool {
	content := strings.ToLower(m.Content)
	for _, term := range errorTerms {
		if strings.Contains(content, term) {
			return true
		}
	}
	return false
}

// classifyError buckets an error memory by its content. Rules apply in
// order; the first match wins.
func classifyError(content string) string {
	c := strings.ToLower(content)
	switch {
	case strings.Contains(c, "typeerror"):
		return "TypeError"
	case strings.Contains(c, "syntaxerror"):
		return "SyntaxError"
	case strings.Contains(c, "null") || strings.Contains(c, "undefined"):
		return "Null/Undefined"
	case strings.Contains(c, "import") || strings.Contains(c, "module"):
		return "Import/Module"
	default:
		return "Other"
	}
}

func analyzeErrors(memories []*types.Memory) ErrorPatterns {
	result := ErrorPatterns{ByType: make(map[string]int)}

	var errorMemories []*types.Memory
	for _, m := range memories {
		if isErrorMemory(m) {
			errorMemories = append(errorMemories, m)
			result.ByType[classifyError(m.Content)]++
		}
	}
	result.Total = len(errorMemories)

	// Mine recurring message fragments from a bounded sample.
	scan := errorMemories
	if len(scan) > errorScanCap {
		scan = scan[:errorScanCap]
	}
	ngramCounts := make(map[string]int)
	var ngramOrder []string
	for _, m := range scan {
		for _, match := range errorMessageRe.FindAllStringSubmatch(m.Content, -1) {
			for _, gram := range ngrams(match[1], 2, 4) {
				if len(gram) < 10 {
					continue
				}
				if _, seen := ngramCounts[gram]; !seen {
					ngramOrder = append(ngramOrder, gram)
				}
				ngramCounts[gram]++
			}
		}
	}

	var recurring []string
	for _, gram := range ngramOrder {
		if ngramCounts[gram] > 1 {
			recurring = append(recurring, gram)
		}
	}
	sort.SliceStable(recurring, func(i, j int) bool {
		return ngramCounts[recurring[i]] > ngramCounts[recurring[j]]
	})
	if len(recurring) > 5 {
		recurring = recurring[:5]
	}
	result.RecurringMessages = recurring
	return result
}

// ngrams returns word n-grams of lengths minN..maxN, lowercased.
func ngrams(text string, minN, maxN int) []string {
	words := strings.Fields(strings.ToLower(text))
	var grams []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			grams = append(grams, strings.Join(words[i:i+n], " "))
		}
	}
	return grams
}

func technologyDistribution(memories []*types.Memory) []TechCount {
	counts := make(map[string]int)
	for _, m := range memories {
		for _, tech := range m.Metadata.Technologies {
			counts[strings.ToLower(tech)]++
		}
	}
	result := make([]TechCount, 0, len(counts))
	for tech, n := range counts {
		result = append(result, TechCount{Technology: tech, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Technology < result[j].Technology
	})
	if len(result) > 10 {
		result = result[:10]
	}
	return result
}

// staleMemories lists memories older than days. Memories without a parsable
// date are skipped. The listing is capped; the total is not.
func staleMemories(memories []*types.Memory, now time.Time, days int) ([]StaleMemory, int) {
	cutoff := now.AddDate(0, 0, -days)
	var stale []StaleMemory
	total := 0
	for _, m := range memories {
		ts, ok := m.Metadata.ParsedDate()
		if !ok || !ts.Before(cutoff) {
			continue
		}
		total++
		if len(stale) < staleListCap {
			stale = append(stale, StaleMemory{
				ID:    m.ID,
				Date:  m.Metadata.DateString(),
				Title: m.Metadata.TitleOrDefault(),
			})
		}
	}
	return stale, total
}

// ageBuckets distributes dated memories by age. Memories without a parsable
// date are left out entirely.
func ageBuckets(memories []*types.Memory, now time.Time) map[string]int {
	buckets := map[string]int{
		"today":        0,
		"this_week":    0,
		"this_month":   0,
		"this_quarter": 0,
		"older":        0,
	}
	for _, m := range memories {
		ts, ok := m.Metadata.ParsedDate()
		if !ok {
			continue
		}
		days := int(now.Sub(ts).Hours() / 24)
		switch {
		case days < 1:
			buckets["today"]++
		case days <= 7:
			buckets["this_week"]++
		case days <= 30:
			buckets["this_month"]++
		case days <= 90:
			buckets["this_quarter"]++
		default:
			buckets["older"]++
		}
	}
	return buckets
}

// titleKey reduces a title to a short comparable key.
func titleKey(title string) string {
	key := nonAlnumRe.ReplaceAllString(strings.ToLower(title), "")
	if len(key) > 20 {
		key = key[:20]
	}
	return key
}

// consolidationCandidates finds groups worth merging: several memories with
// near-identical titles, or many memories from the same day.
func consolidationCandidates(memories []*types.Memory) []ConsolidationCandidate {
	byTitle := make(map[string][]string)
	var titleOrder []string
	byDay := make(map[string][]string)
	var dayOrder []string

	for _, m := range memories {
		if m.Metadata.HasTitle() {
			key := titleKey(m.Metadata.Title)
			if key != "" {
				if _, seen := byTitle[key]; !seen {
					titleOrder = append(titleOrder, key)
				}
				byTitle[key] = append(byTitle[key], m.ID)
			}
		}
		if d := m.Metadata.DateString(); len(d) >= 10 {
			day := d[:10]
			if _, seen := byDay[day]; !seen {
				dayOrder = append(dayOrder, day)
			}
			byDay[day] = append(byDay[day], m.ID)
		}
	}

	var candidates []ConsolidationCandidate
	for _, key := range titleOrder {
		ids := byTitle[key]
		if len(ids) > 2 {
			candidates = append(candidates, ConsolidationCandidate{
				Reason: "similar_titles",
				Key:    key,
				Count:  len(ids),
				IDs:    capIDs(ids, candidateMemberCap),
			})
		}
	}
	for _, day := range dayOrder {
		ids := byDay[day]
		if len(ids) > 3 {
			candidates = append(candidates, ConsolidationCandidate{
				Reason: "same_day",
				Key:    day,
				Count:  len(ids),
				IDs:    capIDs(ids, candidateMemberCap),
			})
		}
	}
	if len(candidates) > candidateCap {
		candidates = candidates[:candidateCap]
	}
	return candidates
}

func capIDs(ids []string, max int) []string {
	if len(ids) > max {
		ids = ids[:max]
	}
	return append([]string(nil), ids...)
}

// recommendations turns analysis findings into human-readable actions.
func (c *Curator) recommendations(memories []*types.Memory, report *PatternReport) []string {
	var recs []string
	total := len(memories)

	if total < 10 {
		recs = append(recs, "Collection is small; keep capturing session summaries before curating.")
	}
	if total > 500 {
		recs = append(recs, fmt.Sprintf("Large collection (%d memories); consider consolidating older sessions.", total))
	}

	dist := ScoreAll(memories)
	if dist.Low > dist.High {
		recs = append(recs, fmt.Sprintf("Quality skews low (%d low vs %d high); run enhance to fill in missing metadata.", dist.Low, dist.High))
	}

	dupes := c.FindDuplicates(memories)
	if dupes.ExactCount > 0 {
		recs = append(recs, fmt.Sprintf("%d exact duplicate memories found; run deduplicate.", dupes.ExactCount))
	}
	if len(dupes.NearPairs) > 0 {
		recs = append(recs, fmt.Sprintf("%d near-duplicate pairs found; review for manual merging.", len(dupes.NearPairs)))
	}

	if report.StaleTotal > 10 {
		recs = append(recs, fmt.Sprintf("%d memories older than %d days; consider archiving.", report.StaleTotal, staleDays))
	}
	if len(report.Candidates) > 0 {
		recs = append(recs, fmt.Sprintf("%d consolidation candidate groups identified.", len(report.Candidates)))
	}
	if total > 0 && float64(report.Errors.Total) > 0.3*float64(total) {
		recs = append(recs, "Over 30% of the collection is error-related; consider capturing successes too.")
	}

	if len(recs) == 0 {
		recs = append(recs, "Collection looks healthy; no action needed.")
	}
	return recs
}
