package game

import (
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// Memory Match: a shuffled board of symbol pairs, alternating turns. A
// matched pair scores a point and keeps the turn; a mismatch flips back
// after the hide delay and passes the turn.

// memorySymbols is the card face pool. The board uses the first Pairs
// entries.
var memorySymbols = []string{
	"🍎", "🍌", "🍇", "🍒", "🍋", "🍉", "🍑", "🥝",
	"🍓", "🍍", "🥥", "🫐", "🍊", "🍐", "🥭", "🍈",
	"⭐", "🌙", "☀️", "🌈", "⚡", "🔥", "❄️", "🌊",
	"🎲", "🎯", "🎁", "🎈", "🎪", "🎵", "🔔", "💎",
}

func (e *Engine) memoryInit(lm *liveMatch, now time.Time) {
	pairs := e.cfg.Memory.Pairs
	cards := make([]domain.MemoryCard, 0, pairs*2)
	for i := 0; i < pairs; i++ {
		symbol := memorySymbols[i%len(memorySymbols)]
		cards = append(cards, domain.MemoryCard{Symbol: symbol}, domain.MemoryCard{Symbol: symbol})
	}
	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	for i := range cards {
		cards[i].ID = i
	}

	lm.data = &domain.MemoryData{
		Cards:      cards,
		Turn:       rand.IntN(2),
		FirstFlip:  -1,
		SecondFlip: -1,
		TotalPairs: pairs,
	}
}

func (e *Engine) memoryHandle(lm *liveMatch, data *domain.MemoryData, side int, a domain.MemoryFlipAction, now time.Time) bool {
	if data.Resolving || data.Turn != side {
		return false
	}
	if a.CardID < 0 || a.CardID >= len(data.Cards) {
		return false
	}
	card := &data.Cards[a.CardID]
	if card.FaceUp || card.Matched {
		return false
	}

	card.FaceUp = true
	if data.FirstFlip < 0 {
		data.FirstFlip = a.CardID
		return true
	}

	first := &data.Cards[data.FirstFlip]
	if first.Symbol == card.Symbol {
		first.Matched = true
		card.Matched = true
		data.PairsFound++
		data.FirstFlip = -1
		lm.match.Players[side].Score++
		// A match keeps the turn.
		lm.emitBoth(domain.EventRoundResult, map[string]any{
			"matched": true,
			"by":      lm.match.Players[side].Address,
			"cards":   []int{first.ID, card.ID},
			"symbol":  card.Symbol,
		})
		return true
	}

	// Mismatch: both cards stay up until the hide delay passes, then flip
	// down and the turn passes.
	data.SecondFlip = a.CardID
	data.Resolving = true
	lm.phaseAt = now.Add(e.cfg.Memory.HideDelay)
	lm.emitBoth(domain.EventRoundResult, map[string]any{
		"matched": false,
		"by":      lm.match.Players[side].Address,
		"cards":   []int{first.ID, card.ID},
	})
	return true
}

func (e *Engine) memoryTick(lm *liveMatch, data *domain.MemoryData, now time.Time) bool {
	if !data.Resolving || now.Before(lm.phaseAt) {
		return false
	}
	data.Cards[data.FirstFlip].FaceUp = false
	data.Cards[data.SecondFlip].FaceUp = false
	data.FirstFlip = -1
	data.SecondFlip = -1
	data.Resolving = false
	data.Turn = 1 - data.Turn
	return true
}

// memoryView hides face-down symbols from the wire.
func memoryView(data *domain.MemoryData) map[string]any {
	cards := make([]map[string]any, 0, len(data.Cards))
	for _, c := range data.Cards {
		view := map[string]any{
			"id":      c.ID,
			"faceUp":  c.FaceUp,
			"matched": c.Matched,
		}
		if c.FaceUp || c.Matched {
			view["symbol"] = c.Symbol
		}
		cards = append(cards, view)
	}
	return map[string]any{
		"cards":      cards,
		"turn":       data.Turn,
		"firstFlip":  data.FirstFlip,
		"pairsFound": data.PairsFound,
		"totalPairs": data.TotalPairs,
	}
}
