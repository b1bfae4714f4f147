package curator

import (
	"log"
	"math"
	"sort"
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/memkeep/memkeep/internal/types"
)

const (
	// nearDupThreshold is the TF-IDF cosine similarity above which two
	// memories count as near-duplicates.
	nearDupThreshold = 0.85

	// nearDupSnippetLen bounds how much of each memory's content feeds the
	// near-duplicate comparison.
	nearDupSnippetLen = 500

	// nearDupMaxTerms caps the TF-IDF vocabulary.
	nearDupMaxTerms = 100

	// nearDupMaxPairs caps how many near-duplicate pairs a single scan
	// reports. Pairs are kept in scan order, not ranked.
	nearDupMaxPairs = 10

	// previewLimit bounds ID lists embedded in results.
	previewLimit = 10
)

// stopwords excluded from near-duplicate term extraction.
var stopwords = map[string]bool{
	"a": true, "about": true, "above": true, "after": true, "again": true,
	"all": true, "also": true, "an": true, "and": true, "any": true,
	"are": true, "as": true, "at": true, "be": true, "because": true,
	"been": true, "before": true, "being": true, "between": true, "both": true,
	"but": true, "by": true, "can": true, "could": true, "did": true,
	"do": true, "does": true, "doing": true, "down": true, "during": true,
	"each": true, "few": true, "for": true, "from": true, "further": true,
	"had": true, "has": true, "have": true, "having": true, "he": true,
	"her": true, "here": true, "him": true, "his": true, "how": true,
	"i": true, "if": true, "in": true, "into": true, "is": true, "it": true,
	"its": true, "just": true, "me": true, "more": true, "most": true,
	"my": true, "no": true, "not": true, "now": true, "of": true, "off": true,
	"on": true, "once": true, "only": true, "or": true, "other": true,
	"our": true, "out": true, "over": true, "own": true, "same": true,
	"she": true, "should": true, "so": true, "some": true, "such": true,
	"than": true, "that": true, "the": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "through": true, "to": true, "too": true, "under": true,
	"until": true, "up": true, "very": true, "was": true, "we": true,
	"were": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "who": true, "why": true, "will": true, "with": true,
	"would": true, "you": true, "your": true,
}

// NearPair is a pair of distinct memories with high content similarity.
type NearPair struct {
	ID1        string  `json:"id1"`
	ID2        string  `json:"id2"`
	Similarity float64 `json:"similarity"`
}

// DuplicateReport describes exact and near duplicates found in a scan.
type DuplicateReport struct {
	ExactGroups [][]string `json:"exact_groups"` // each group: ids sharing a content hash
	NearPairs   []NearPair `json:"near_pairs"`
	ExactCount  int        `json:"exact_count"` // redundant memories (group sizes minus one each)
}

// FindDuplicates scans the collection for exact duplicates (identical content
// hash) and near duplicates (TF-IDF cosine over content snippets).
func (c *Curator) FindDuplicates(memories []*types.Memory) *DuplicateReport {
	report := &DuplicateReport{}

	// Exact: group by content hash, keep groups of 2+ in scan order.
	byHash := make(map[string][]string)
	var hashOrder []string
	for _, m := range memories {
		h := m.ContentHash()
		if _, seen := byHash[h]; !seen {
			hashOrder = append(hashOrder, h)
		}
		byHash[h] = append(byHash[h], m.ID)
	}
	for _, h := range hashOrder {
		ids := byHash[h]
		if len(ids) > 1 {
			report.ExactGroups = append(report.ExactGroups, ids)
			report.ExactCount += len(ids) - 1
		}
	}

	report.NearPairs = findNearDuplicates(memories)
	return report
}

// findNearDuplicates compares pairwise TF-IDF vectors over content snippets.
// Stops after nearDupMaxPairs pairs; the scan is bounded, not exhaustive.
func findNearDuplicates(memories []*types.Memory) []NearPair {
	if len(memories) < 2 {
		return nil
	}

	vecs := make([]map[string]float64, len(memories))
	df := make(map[string]int)
	for i, m := range memories {
		snippet := m.Content
		if len(snippet) > nearDupSnippetLen {
			snippet = snippet[:nearDupSnippetLen]
		}
		tf := termFrequencies(snippet)
		vecs[i] = tf
		for term := range tf {
			df[term]++
		}
	}

	vocab := topTerms(df, nearDupMaxTerms)

	n := float64(len(memories))
	idf := make(map[string]float64, len(vocab))
	for _, term := range vocab {
		idf[term] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	// Project each snippet onto the shared vocabulary and L2-normalize.
	proj := make([][]float64, len(memories))
	for i, tf := range vecs {
		v := make([]float64, len(vocab))
		var norm float64
		for j, term := range vocab {
			w := tf[term] * idf[term]
			v[j] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range v {
				v[j] /= norm
			}
		}
		proj[i] = v
	}

	var pairs []NearPair
	for i := 0; i < len(memories) && len(pairs) < nearDupMaxPairs; i++ {
		for j := i + 1; j < len(memories) && len(pairs) < nearDupMaxPairs; j++ {
			// Skip exact duplicates; those are reported separately.
			if memories[i].ContentHash() == memories[j].ContentHash() {
				continue
			}
			var dot float64
			for k := range proj[i] {
				dot += proj[i][k] * proj[j][k]
			}
			if dot > nearDupThreshold {
				pairs = append(pairs, NearPair{
					ID1:        memories[i].ID,
					ID2:        memories[j].ID,
					Similarity: dot,
				})
			}
		}
	}
	return pairs
}

// termFrequencies tokenizes a snippet and counts informative terms.
func termFrequencies(text string) map[string]float64 {
	tf := make(map[string]float64)
	for _, tok := range tokenize(text) {
		term := strings.ToLower(tok)
		if len(term) < 2 || stopwords[term] {
			continue
		}
		tf[term]++
	}
	return tf
}

// tokenize splits text into word tokens, falling back to whitespace
// splitting when the NLP tokenizer rejects the input.
func tokenize(text string) []string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return strings.Fields(text)
	}
	toks := doc.Tokens()
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if isWordToken(t.Text) {
			out = append(out, t.Text)
		}
	}
	return out
}

func isWordToken(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return true
		}
	}
	return false
}

// topTerms returns up to max terms ranked by document frequency, ties broken
// alphabetically for determinism.
func topTerms(df map[string]int, max int) []string {
	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > max {
		terms = terms[:max]
	}
	return terms
}

// DedupeResult reports a deduplication pass.
type DedupeResult struct {
	DryRun         bool       `json:"dry_run"`
	GroupsFound    int        `json:"groups_found"`
	Removed        int        `json:"removed"`
	RemovedPreview []string   `json:"removed_preview"` // at most previewLimit ids
	NearPairs      []NearPair `json:"near_pairs"`      // advisory only, never auto-removed
}

// Deduplicate removes exact duplicates, keeping the first-seen memory of each
// group. Near duplicates are reported but never removed automatically. With
// dryRun set nothing is deleted.
func (c *Curator) Deduplicate(dryRun bool) (*DedupeResult, error) {
	memories, err := c.store.GetAll()
	if err != nil {
		return nil, err
	}

	report := c.FindDuplicates(memories)
	result := &DedupeResult{
		DryRun:      dryRun,
		GroupsFound: len(report.ExactGroups),
		NearPairs:   report.NearPairs,
	}

	for _, group := range report.ExactGroups {
		for _, id := range group[1:] { // keep the first-seen memory
			if !dryRun {
				if err := c.store.Delete(id); err != nil {
					log.Printf("[curator] dedupe: failed to delete %s: %v", id, err)
					continue
				}
			}
			result.Removed++
			if len(result.RemovedPreview) < previewLimit {
				result.RemovedPreview = append(result.RemovedPreview, id)
			}
		}
	}

	if result.Removed > 0 {
		log.Printf("[curator] dedupe: %d duplicate groups, %d memories removed (dry_run=%v)",
			result.GroupsFound, result.Removed, dryRun)
	}
	return result, nil
}
