package game

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// Pattern Tap: a shared sequence of pad indices is shown, then both players
// reproduce it from memory. An exact full-length reproduction scores a
// point. Once both have submitted, the sequence grows by one and is shown
// again; the duel runs until the game timer.

// patternPads is the number of tappable pads.
const patternPads = 4

func (e *Engine) patternInit(lm *liveMatch, now time.Time) {
	length := e.cfg.Pattern.StartLength
	seq := make([]int, length)
	for i := range seq {
		seq[i] = rand.IntN(patternPads)
	}
	lm.data = &domain.PatternData{
		Sequence: seq,
		Length:   length,
		Phase:    domain.PhaseShowing,
	}
	lm.phaseAt = now.Add(e.patternShowTime(length))
}

// patternShowTime scales the display window with sequence length.
func (e *Engine) patternShowTime(length int) time.Duration {
	return e.cfg.Pattern.ShowBase + time.Duration(length)*e.cfg.Pattern.ShowPerStep
}

func (e *Engine) patternHandle(lm *liveMatch, data *domain.PatternData, side int, a domain.PatternTapAction, now time.Time) bool {
	if data.Phase != domain.PhaseInput || data.Done[side] {
		return false
	}
	data.Done[side] = true

	correct := len(a.Sequence) == data.Length && slices.Equal(a.Sequence, data.Sequence)
	if correct {
		lm.match.Players[side].Score++
	}
	lm.emitBoth(domain.EventRoundResult, map[string]any{
		"length":  data.Length,
		"by":      lm.match.Players[side].Address,
		"correct": correct,
	})

	if data.Done[0] && data.Done[1] {
		// Grow the sequence and schedule the next showing.
		data.Sequence = append(data.Sequence, rand.IntN(patternPads))
		data.Length++
		data.Phase = domain.PhasePause
		lm.phaseAt = now.Add(e.cfg.Pattern.ReshowDelay)
	}
	return true
}

func (e *Engine) patternTick(lm *liveMatch, data *domain.PatternData, now time.Time) bool {
	if now.Before(lm.phaseAt) {
		return false
	}
	switch data.Phase {
	case domain.PhaseShowing:
		data.Phase = domain.PhaseInput
		data.Done = [2]bool{}
		return true
	case domain.PhasePause:
		data.Phase = domain.PhaseShowing
		lm.phaseAt = now.Add(e.patternShowTime(data.Length))
		return true
	}
	return false
}

// patternView hides the sequence except while it is being shown.
func patternView(data *domain.PatternData) map[string]any {
	out := map[string]any{
		"length": data.Length,
		"phase":  data.Phase,
		"done":   data.Done,
	}
	if data.Phase == domain.PhaseShowing {
		out["sequence"] = data.Sequence
	}
	return out
}
