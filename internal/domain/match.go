package domain

import "time"

// GameType identifies one of the four mini-game rule sets.
type GameType string

const (
	GameReactionRace GameType = "REACTION_RACE"
	GameMemoryMatch  GameType = "MEMORY_MATCH"
	GameQuickMath    GameType = "QUICK_MATH"
	GamePatternTap   GameType = "PATTERN_TAP"
)

// Valid reports whether gt names a known game type.
func (gt GameType) Valid() bool {
	switch gt {
	case GameReactionRace, GameMemoryMatch, GameQuickMath, GamePatternTap:
		return true
	}
	return false
}

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchWaiting   MatchStatus = "WAITING"
	MatchActive    MatchStatus = "ACTIVE"
	MatchCompleted MatchStatus = "COMPLETED"
	MatchCancelled MatchStatus = "CANCELLED"
)

// MatchPlayer is one side of a match.
type MatchPlayer struct {
	Address      string    `json:"address"`
	Ready        bool      `json:"ready"`
	Connected    bool      `json:"connected"`
	Score        int       `json:"score"`
	SessionID    string    `json:"-"`
	DisconnectAt time.Time `json:"-"`
}

// Match is a single two-player contest. Both players stake the same amount;
// the escrow is created before the match object and settled as the final step
// of completion.
type Match struct {
	ID          string         `json:"id"`
	GameType    GameType       `json:"gameType"`
	Players     [2]MatchPlayer `json:"players"`
	Stake       Amount         `json:"stake"`
	Status      MatchStatus    `json:"status"`
	EscrowID    string         `json:"escrowId"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   time.Time      `json:"startedAt,omitzero"`
	CompletedAt time.Time      `json:"completedAt,omitzero"`
}

// PlayerIndex returns the side (0 or 1) for the given address, or -1 when the
// address is not a participant.
func (m *Match) PlayerIndex(address string) int {
	for i := range m.Players {
		if m.Players[i].Address == address {
			return i
		}
	}
	return -1
}

// Opponent returns the address of the other side, or "" when address is not a
// participant.
func (m *Match) Opponent(address string) string {
	switch m.PlayerIndex(address) {
	case 0:
		return m.Players[1].Address
	case 1:
		return m.Players[0].Address
	}
	return ""
}

// MatchTicket is one player's entry in the matchmaking queue.
type MatchTicket struct {
	Address    string    `json:"address"`
	GameType   GameType  `json:"gameType"`
	Stake      Amount    `json:"stake"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// MatchRecord is the settled result of a completed match, as persisted for
// stats and history. Winner is empty for a tie.
type MatchRecord struct {
	MatchID     string    `json:"matchId"`
	GameType    GameType  `json:"gameType"`
	PlayerA     string    `json:"playerA"`
	PlayerB     string    `json:"playerB"`
	Winner      string    `json:"winner"`
	Stake       Amount    `json:"stake"`
	Payout      Amount    `json:"payout"`
	ScoreA      int       `json:"scoreA"`
	ScoreB      int       `json:"scoreB"`
	CompletedAt time.Time `json:"completedAt"`
}
