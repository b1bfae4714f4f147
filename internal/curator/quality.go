package curator

import (
	"strings"

	"github.com/memkeep/memkeep/internal/types"
)

// Quality bucket labels.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// QualityScore rates a memory's metadata and content richness on [0,1].
// Each signal adds a fixed increment; adding metadata never lowers the score.
func QualityScore(m *types.Memory) float64 {
	score := 0.0

	switch n := len(m.Content); {
	case n > 500:
		score += 0.2
	case n > 200:
		score += 0.1
	}

	if m.Metadata.HasTitle() {
		score += 0.2
	}
	if len(m.Metadata.Technologies) > 0 {
		score += 0.15
	}
	if m.Metadata.Complexity != "" {
		score += 0.1
	}
	if m.Metadata.DateString() != "" {
		score += 0.1
	}
	if m.Metadata.Source != "" {
		score += 0.1
	}
	if strings.Contains(m.Content, "```") {
		score += 0.15
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// QualityBucket maps a score to high/medium/low.
func QualityBucket(score float64) string {
	switch {
	case score >= 0.8:
		return QualityHigh
	case score >= 0.5:
		return QualityMedium
	default:
		return QualityLow
	}
}

// QualityDistribution summarizes scores across a collection.
type QualityDistribution struct {
	Average float64 `json:"average_score"`
	High    int     `json:"high"`
	Medium  int     `json:"medium"`
	Low     int     `json:"low"`
}

// ScoreAll computes the distribution over a set of memories.
func ScoreAll(memories []*types.Memory) QualityDistribution {
	var dist QualityDistribution
	if len(memories) == 0 {
		return dist
	}
	var sum float64
	for _, m := range memories {
		s := QualityScore(m)
		sum += s
		switch QualityBucket(s) {
		case QualityHigh:
			dist.High++
		case QualityMedium:
			dist.Medium++
		default:
			dist.Low++
		}
	}
	dist.Average = sum / float64(len(memories))
	return dist
}
