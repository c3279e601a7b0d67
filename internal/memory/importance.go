package memory

import (
	"strings"

	"github.com/dlyss/ai-agent-framework/internal/core"
)

// Scorer assigns an importance in [0, 1] to a turn. Higher scores make a
// turn more likely to be archived into long-term memory.
type Scorer interface {
	Score(turn core.Turn) float64
}

// HeuristicScorer scores turns without a model call: an explicit hint on
// the turn wins, otherwise a role prior plus bonuses for memorable
// phrasing and length.
type HeuristicScorer struct{}

func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

var importanceMarkers = []string{
	"remember",
	"important",
	"my name is",
	"i prefer",
	"always",
	"never",
	"deadline",
	"order",
}

func (s *HeuristicScorer) Score(turn core.Turn) float64 {
	if turn.ImportanceHint > 0 {
		return clamp01(turn.ImportanceHint)
	}

	var score float64
	switch turn.Role {
	case core.RoleSystem:
		score = 0.6
	case core.RoleUser:
		score = 0.4
	default:
		score = 0.3
	}

	content := strings.ToLower(turn.Content)
	for _, m := range importanceMarkers {
		if strings.Contains(content, m) {
			score += 0.3
			break
		}
	}

	// Longer turns tend to carry more context worth keeping.
	length := float64(len(turn.Content)) / 800
	if length > 0.2 {
		length = 0.2
	}
	score += length

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
