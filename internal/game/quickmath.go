package game

import (
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// Quick Math: both players race on the same arithmetic problem. The first
// submitted answer closes the problem; a correct first answer scores.

func (e *Engine) mathInit(lm *liveMatch, _ time.Time) {
	problems := make([]domain.MathProblem, e.cfg.Math.Problems)
	for i := range problems {
		problems[i] = generateProblem()
	}
	lm.data = &domain.MathData{Problems: problems}
}

// generateProblem builds one problem. Subtraction operands are arranged so
// results stay non-negative; multiplication stays within times-table range.
func generateProblem() domain.MathProblem {
	switch rand.IntN(3) {
	case 0:
		a, b := rand.IntN(50)+1, rand.IntN(50)+1
		return domain.MathProblem{A: a, B: b, Op: "+", Answer: a + b}
	case 1:
		a, b := rand.IntN(50)+20, rand.IntN(20)+1
		return domain.MathProblem{A: a, B: b, Op: "-", Answer: a - b}
	default:
		a, b := rand.IntN(12)+1, rand.IntN(12)+1
		return domain.MathProblem{A: a, B: b, Op: "×", Answer: a * b}
	}
}

func (e *Engine) mathHandle(lm *liveMatch, data *domain.MathData, side int, a domain.MathAnswerAction, _ time.Time) bool {
	// Answers for anything but the live problem are stale.
	if a.ProblemIndex != data.Index || data.Index >= len(data.Problems) {
		return false
	}
	correct := a.Answer == data.Problems[data.Index].Answer
	if correct {
		lm.match.Players[side].Score++
	}
	lm.emitBoth(domain.EventRoundResult, map[string]any{
		"problemIndex": data.Index,
		"by":           lm.match.Players[side].Address,
		"correct":      correct,
		"answer":       data.Problems[data.Index].Answer,
	})
	data.Index++
	return true
}

// mathView exposes only the live problem, without its answer.
func mathView(data *domain.MathData) map[string]any {
	out := map[string]any{
		"index": data.Index,
		"total": len(data.Problems),
	}
	if data.Index < len(data.Problems) {
		p := data.Problems[data.Index]
		out["problem"] = map[string]any{"a": p.A, "b": p.B, "op": p.Op}
	}
	return out
}
