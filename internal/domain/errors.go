package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEscrowNotFound      = errors.New("escrow not found")
	ErrEscrowReleased      = errors.New("escrow already settled")
	ErrInvalidWinner       = errors.New("winner is not a party to the escrow")
	ErrAlreadySearching    = errors.New("player already searching")
	ErrNotSearching        = errors.New("player not searching")
	ErrAlreadyInMatch      = errors.New("player already in a match")
	ErrMatchNotFound       = errors.New("match not found")
	ErrStakeOutOfRange     = errors.New("stake outside allowed range")
	ErrInvalidGameType     = errors.New("unknown game type")
	ErrSigningFailed       = errors.New("signing failed")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrLockHeld            = errors.New("lock already held")
)
