package curator

import (
	"fmt"
	"testing"

	"github.com/memkeep/memkeep/internal/types"
)

func mem(id, content string) *types.Memory {
	return &types.Memory{ID: id, Content: content}
}

func TestFindDuplicates_ExactGroups(t *testing.T) {
	var c Curator
	report := c.FindDuplicates([]*types.Memory{
		mem("a", "shared content"),
		mem("b", "shared content"),
		mem("c", "unique content"),
		mem("d", "shared content"),
	})

	if len(report.ExactGroups) != 1 {
		t.Fatalf("ExactGroups = %v", report.ExactGroups)
	}
	group := report.ExactGroups[0]
	if len(group) != 3 || group[0] != "a" {
		t.Errorf("group = %v, want [a b d]", group)
	}
	if report.ExactCount != 2 {
		t.Errorf("ExactCount = %d, want 2", report.ExactCount)
	}
}

func TestFindDuplicates_NearPairs(t *testing.T) {
	var c Curator
	// Same words, different whitespace: distinct hashes, near-identical terms.
	report := c.FindDuplicates([]*types.Memory{
		mem("a", "debugged the payment gateway timeout handling in checkout service"),
		mem("b", "debugged the payment  gateway timeout handling in checkout service "),
		mem("c", "wrote release notes for the quarterly marketing newsletter draft"),
	})

	if len(report.ExactGroups) != 0 {
		t.Errorf("whitespace variants should not be exact duplicates: %v", report.ExactGroups)
	}
	if len(report.NearPairs) != 1 {
		t.Fatalf("NearPairs = %v, want exactly the a/b pair", report.NearPairs)
	}
	pair := report.NearPairs[0]
	if pair.ID1 != "a" || pair.ID2 != "b" {
		t.Errorf("pair = %+v", pair)
	}
	if pair.Similarity <= nearDupThreshold {
		t.Errorf("similarity = %f, want > %f", pair.Similarity, nearDupThreshold)
	}
}

func TestFindDuplicates_NearPairsExcludeExact(t *testing.T) {
	var c Curator
	report := c.FindDuplicates([]*types.Memory{
		mem("a", "identical content about the deployment pipeline rollback"),
		mem("b", "identical content about the deployment pipeline rollback"),
	})
	if len(report.NearPairs) != 0 {
		t.Errorf("exact duplicates must not appear as near pairs: %v", report.NearPairs)
	}
	if len(report.ExactGroups) != 1 {
		t.Errorf("ExactGroups = %v", report.ExactGroups)
	}
}

func TestFindDuplicates_NearPairCap(t *testing.T) {
	var c Curator
	// Many copies of similar-but-not-identical content produce more than
	// nearDupMaxPairs candidate pairs; the scan must stop at the cap.
	var memories []*types.Memory
	for i := 0; i < 12; i++ {
		memories = append(memories, mem(
			fmt.Sprintf("m%d", i),
			fmt.Sprintf("investigated the cache invalidation race in session store variant %d", i),
		))
	}
	report := c.FindDuplicates(memories)
	if len(report.NearPairs) > nearDupMaxPairs {
		t.Errorf("NearPairs = %d, cap is %d", len(report.NearPairs), nearDupMaxPairs)
	}
}

func TestTokenize_FallsBackOnEmptyInput(t *testing.T) {
	if toks := tokenize(""); len(toks) != 0 {
		t.Errorf("tokenize(\"\") = %v", toks)
	}
}

func TestTopTerms_Deterministic(t *testing.T) {
	df := map[string]int{"beta": 2, "alpha": 2, "gamma": 3}
	terms := topTerms(df, 2)
	if len(terms) != 2 || terms[0] != "gamma" || terms[1] != "alpha" {
		t.Errorf("topTerms = %v, want [gamma alpha]", terms)
	}
}
