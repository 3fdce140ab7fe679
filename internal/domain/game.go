package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// GamePhase is the sub-state of a running mini-game.
type GamePhase string

const (
	PhaseWaiting GamePhase = "waiting"
	PhaseTap     GamePhase = "tap"
	PhasePause   GamePhase = "pause"
	PhaseShowing GamePhase = "showing"
	PhaseInput   GamePhase = "input"
	PhaseDone    GamePhase = "done"
)

// GameData is the per-game state payload of a match. Exactly one concrete
// type exists per GameType; dispatch is always an exhaustive type switch and
// adding a game type without handling it everywhere is a compile-time smell.
type GameData interface {
	GameType() GameType
}

// ReactionData is the state of a Reaction Race: a fixed number of rounds,
// each with a randomized arming delay followed by a tap window. Both sides
// tap; the faster reaction, timed from the arming instant, takes the point.
type ReactionData struct {
	Round       int       `json:"round"`
	TotalRounds int       `json:"totalRounds"`
	Phase       GamePhase `json:"phase"`
	ArmedAt     time.Time `json:"armedAt,omitzero"`
	Tapped      [2]bool   `json:"-"`
	TapMs       [2]int64  `json:"-"`
}

func (ReactionData) GameType() GameType { return GameReactionRace }

// MemoryCard is a single card on the Memory Match board.
type MemoryCard struct {
	ID      int    `json:"id"`
	Symbol  string `json:"symbol"`
	FaceUp  bool   `json:"faceUp"`
	Matched bool   `json:"matched"`
}

// MemoryData is the state of a Memory Match board: shuffled symbol pairs,
// alternating turns, a matched pair keeps the turn.
type MemoryData struct {
	Cards      []MemoryCard `json:"cards"`
	Turn       int          `json:"turn"`
	FirstFlip  int          `json:"firstFlip"`
	SecondFlip int          `json:"-"`
	PairsFound int          `json:"pairsFound"`
	TotalPairs int          `json:"totalPairs"`
	Resolving  bool         `json:"-"`
}

func (MemoryData) GameType() GameType { return GameMemoryMatch }

// MathProblem is a single arithmetic problem. Both players race on the same
// problem; the first submitted answer closes it.
type MathProblem struct {
	A      int    `json:"a"`
	B      int    `json:"b"`
	Op     string `json:"op"`
	Answer int    `json:"-"`
}

// MathData is the state of a Quick Math race.
type MathData struct {
	Problems []MathProblem `json:"problems"`
	Index    int           `json:"index"`
}

func (MathData) GameType() GameType { return GameQuickMath }

// PatternData is the state of a Pattern Tap duel: a shared growing sequence
// of pad indices; a full-length exact reproduction scores.
type PatternData struct {
	Sequence []int     `json:"sequence"`
	Length   int       `json:"length"`
	Phase    GamePhase `json:"phase"`
	Done     [2]bool   `json:"done"`
}

func (PatternData) GameType() GameType { return GamePatternTap }

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// GameAction is a player input for a running match. Stale or out-of-phase
// actions are ignored silently, never rejected with an error.
type GameAction interface {
	ActionType() string
}

// ReactionTapAction is a tap in Reaction Race. Timestamp is the client's
// Unix-millisecond tap time.
type ReactionTapAction struct {
	Timestamp int64 `json:"timestamp"`
}

func (ReactionTapAction) ActionType() string { return "REACTION_TAP" }

// MemoryFlipAction flips one card in Memory Match.
type MemoryFlipAction struct {
	CardID int `json:"cardId"`
}

func (MemoryFlipAction) ActionType() string { return "MEMORY_FLIP" }

// MathAnswerAction answers the problem at ProblemIndex in Quick Math.
type MathAnswerAction struct {
	Answer       int `json:"answer"`
	ProblemIndex int `json:"problemIndex"`
}

func (MathAnswerAction) ActionType() string { return "MATH_ANSWER" }

// PatternTapAction submits a full sequence reproduction in Pattern Tap.
type PatternTapAction struct {
	Sequence []int `json:"sequence"`
}

func (PatternTapAction) ActionType() string { return "PATTERN_TAP" }

// DecodeGameAction parses a wire action envelope into its concrete type.
func DecodeGameAction(actionType string, payload json.RawMessage) (GameAction, error) {
	switch actionType {
	case "REACTION_TAP":
		var a ReactionTapAction
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("action: decode %s: %w", actionType, err)
		}
		return a, nil
	case "MEMORY_FLIP":
		var a MemoryFlipAction
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("action: decode %s: %w", actionType, err)
		}
		return a, nil
	case "MATH_ANSWER":
		var a MathAnswerAction
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("action: decode %s: %w", actionType, err)
		}
		return a, nil
	case "PATTERN_TAP":
		var a PatternTapAction
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("action: decode %s: %w", actionType, err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("action: unknown type %q", actionType)
}
