package domain

import (
	"encoding/json"
	"fmt"
)

// Outbound event types pushed to players over the session hub.
const (
	EventConnected            = "connected"
	EventSearching            = "searchingForMatch"
	EventMatchFound           = "matchFound"
	EventMatchCancelled       = "matchCancelled"
	EventPlayerReady          = "playerReady"
	EventGameStart            = "gameStart"
	EventGameStateUpdate      = "gameStateUpdate"
	EventRoundResult          = "roundResult"
	EventGameEnd              = "gameEnd"
	EventOpponentDisconnected = "opponentDisconnected"
	EventOpponentReconnected  = "opponentReconnected"
	EventBalanceUpdate        = "balanceUpdate"
	EventError                = "error"
)

// Event is the wire envelope for everything pushed to a player. Seq is a
// per-match strictly increasing sequence number; consumers may rely on Seq
// monotonicity to discard reordered state updates. Events outside a match
// carry Seq 0.
type Event struct {
	Type    string          `json:"type"`
	MatchID string          `json:"matchId,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an Event envelope.
func NewEvent(typ string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("event: marshal %s payload: %w", typ, err)
	}
	return Event{Type: typ, Payload: raw}, nil
}

// PlayerChannel is the pub/sub channel carrying events for one player.
func PlayerChannel(address string) string {
	return "ch:player:" + address
}

// LobbyChannel carries platform-wide announcements.
const LobbyChannel = "ch:lobby"

// EventPublisher delivers events to players. The session hub implements it
// for a single process; the signal-bus bridge implements it across processes.
type EventPublisher interface {
	PublishToPlayer(address string, ev Event)
}
