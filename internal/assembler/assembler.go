// Package assembler builds budgeted context windows from recent turns
// and retrieved long-term memory.
package assembler

import (
	"context"
	"strings"

	"github.com/dlyss/ai-agent-framework/internal/core"
	"github.com/dlyss/ai-agent-framework/pkg/log"
)

// ShortTermSource provides a session's recent turns within a budget.
type ShortTermSource interface {
	Window(sessionID string, budget int, size core.SizeFunc) []core.Turn
}

// DocSource provides long-term items relevant to a query.
type DocSource interface {
	Retrieve(ctx context.Context, query string, k int, scoreThreshold float64, filters map[string]string) ([]core.RetrievalResult, error)
}

type Options struct {
	// Size measures content against the budget. Defaults to RuneSize.
	Size core.SizeFunc

	// ShortTermFraction of the budget goes to recent turns; whatever
	// they leave unused rolls over to retrieved items.
	ShortTermFraction float64

	// ScoreThreshold below which retrieved items are discarded.
	ScoreThreshold float64
}

// Assembler packs a context window: recent turns first, then retrieved
// long-term items by score, never exceeding the budget. Retrieval
// failures degrade to a turns-only window rather than failing the
// request.
type Assembler struct {
	turns ShortTermSource
	docs  DocSource
	opts  Options
}

func New(turns ShortTermSource, docs DocSource, opts Options) *Assembler {
	if opts.Size == nil {
		opts.Size = core.RuneSize
	}
	if opts.ShortTermFraction <= 0 || opts.ShortTermFraction > 1 {
		opts.ShortTermFraction = 0.4
	}
	return &Assembler{turns: turns, docs: docs, opts: opts}
}

// Build assembles the window for one request. An empty query skips
// retrieval and gives the whole budget to recent turns.
func (a *Assembler) Build(ctx context.Context, sessionID, query string, budget, retrievalK int) (core.ContextWindow, error) {
	if budget <= 0 {
		return core.ContextWindow{}, &core.ValidationError{Field: "budget", Reason: "must be positive"}
	}

	query = strings.TrimSpace(query)

	turnBudget := budget
	if query != "" {
		turnBudget = int(float64(budget) * a.opts.ShortTermFraction)
	}

	window := core.ContextWindow{
		Turns: a.turns.Window(sessionID, turnBudget, a.opts.Size),
	}
	for _, t := range window.Turns {
		window.TotalSize += a.opts.Size(t.Content)
	}

	if query == "" || retrievalK <= 0 {
		return window, nil
	}

	results, err := a.docs.Retrieve(ctx, query, retrievalK, a.opts.ScoreThreshold,
		map[string]string{core.MetaSessionID: sessionID})
	if err != nil {
		if core.IsUnavailable(err) || core.IsCollectionMissing(err) {
			log.FromCtx(ctx).Warn().Err(err).
				Str("session_id", sessionID).
				Msg("retrieval degraded, serving turns only")
			return window, nil
		}
		return core.ContextWindow{}, err
	}

	// Greedy pack by rank; the first item that does not fit ends the
	// pass so ordering stays deterministic.
	seen := make(map[string]struct{}, len(window.Turns)+len(results))
	for _, t := range window.Turns {
		seen[normalize(t.Content)] = struct{}{}
	}

	remaining := budget - window.TotalSize
	for _, r := range results {
		key := normalize(r.Item.Content)
		if _, dup := seen[key]; dup {
			continue
		}

		cost := a.opts.Size(r.Item.Content)
		if cost > remaining {
			break
		}
		seen[key] = struct{}{}
		window.Retrieved = append(window.Retrieved, r)
		window.TotalSize += cost
		remaining -= cost
	}

	return window, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
