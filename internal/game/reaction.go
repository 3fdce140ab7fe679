package game

import (
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// Reaction Race: a fixed number of rounds. Each round arms after a random
// delay; both players tap and the faster reaction, timed from the arming
// instant using the submitted tap timestamp, takes the point. Taps before
// the pad arms earn no time.

func (e *Engine) reactionInit(lm *liveMatch, now time.Time) {
	data := &domain.ReactionData{
		Round:       1,
		TotalRounds: e.cfg.Reaction.Rounds,
		Phase:       domain.PhaseWaiting,
	}
	lm.data = data
	lm.phaseAt = now.Add(e.reactionArmDelay())
}

// reactionArmDelay picks the randomized delay before the pad arms.
func (e *Engine) reactionArmDelay() time.Duration {
	d := e.cfg.Reaction.MinDelay
	if e.cfg.Reaction.ExtraDelay > 0 {
		d += time.Duration(rand.Int64N(int64(e.cfg.Reaction.ExtraDelay)))
	}
	return d
}

func (e *Engine) reactionHandle(lm *liveMatch, data *domain.ReactionData, side int, a domain.ReactionTapAction, now time.Time) bool {
	if data.Phase != domain.PhaseTap || data.Tapped[side] {
		return false
	}
	tapAt := time.UnixMilli(a.Timestamp)
	if tapAt.Before(data.ArmedAt) {
		// Backdated taps earn no time.
		return false
	}
	data.Tapped[side] = true
	data.TapMs[side] = tapAt.Sub(data.ArmedAt).Milliseconds()

	if !data.Tapped[0] || !data.Tapped[1] {
		return true
	}
	e.reactionCloseRound(lm, data, now)
	return true
}

// reactionCloseRound compares the two recorded reactions once both players
// have tapped, awards the point, and moves to the inter-round pause. Equal
// times score nobody.
func (e *Engine) reactionCloseRound(lm *liveMatch, data *domain.ReactionData, now time.Time) {
	winner := ""
	switch {
	case data.TapMs[0] < data.TapMs[1]:
		lm.match.Players[0].Score++
		winner = lm.match.Players[0].Address
	case data.TapMs[1] < data.TapMs[0]:
		lm.match.Players[1].Score++
		winner = lm.match.Players[1].Address
	}
	lm.emitBoth(domain.EventRoundResult, map[string]any{
		"round":  data.Round,
		"winner": winner,
		"times": map[string]int64{
			lm.match.Players[0].Address: data.TapMs[0],
			lm.match.Players[1].Address: data.TapMs[1],
		},
	})

	if data.Round >= data.TotalRounds {
		data.Phase = domain.PhaseDone
		return
	}
	data.Phase = domain.PhasePause
	lm.phaseAt = now.Add(e.cfg.Reaction.RoundPause)
}

func (e *Engine) reactionTick(lm *liveMatch, data *domain.ReactionData, now time.Time) bool {
	if now.Before(lm.phaseAt) {
		return false
	}
	switch data.Phase {
	case domain.PhaseWaiting:
		data.Phase = domain.PhaseTap
		data.ArmedAt = now
		return true
	case domain.PhasePause:
		data.Round++
		data.Tapped = [2]bool{}
		data.TapMs = [2]int64{}
		data.Phase = domain.PhaseWaiting
		data.ArmedAt = time.Time{}
		lm.phaseAt = now.Add(e.reactionArmDelay())
		return true
	}
	return false
}
