package domain

import "time"

// StartingRating is the skill rating assigned to a player on first settlement.
const StartingRating = 1000.0

// PlayerStats is the aggregate record for one player. Rating moves by
// K*(score-0.5) per settled match with score 1/0.5/0 for win/tie/loss.
type PlayerStats struct {
	Address      string    `json:"address"`
	Rating       float64   `json:"rating"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Ties         int       `json:"ties"`
	Matches      int       `json:"matches"`
	TotalWagered Amount    `json:"totalWagered"`
	TotalWon     Amount    `json:"totalWon"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// WinRate returns the win percentage over all settled matches.
func (s PlayerStats) WinRate() float64 {
	if s.Matches == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Matches) * 100
}

// PlatformStats is a point-in-time snapshot of server activity.
type PlatformStats struct {
	OnlinePlayers    int `json:"onlinePlayers"`
	SearchingPlayers int `json:"searchingPlayers"`
	ActiveMatches    int `json:"activeMatches"`
}
