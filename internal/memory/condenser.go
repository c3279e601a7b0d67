package memory

import (
	"strings"
)

const maxCondensedLine = 280

// Condenser reduces a batch of buffered turns to a single archivable
// text. Implementations may summarize with a model; the default is
// extractive and deterministic.
type Condenser interface {
	Condense(turns []BufferedTurn) string
}

// ExtractiveCondenser joins turns into "ROLE: content" lines, truncating
// long turns so a summary stays compact.
type ExtractiveCondenser struct{}

func NewExtractiveCondenser() *ExtractiveCondenser {
	return &ExtractiveCondenser{}
}

func (c *ExtractiveCondenser) Condense(turns []BufferedTurn) string {
	lines := make([]string, 0, len(turns))
	for _, bt := range turns {
		content := strings.TrimSpace(bt.Turn.Content)
		if content == "" {
			continue
		}
		if len(content) > maxCondensedLine {
			content = content[:maxCondensedLine] + "..."
		}
		lines = append(lines, strings.ToUpper(string(bt.Turn.Role))+": "+content)
	}
	return strings.Join(lines, "\n")
}
