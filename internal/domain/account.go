package domain

import "time"

// Account is a player's on-platform balance. The nonce increases on every
// balance mutation and is folded into settlement vouchers so a stale voucher
// can never be replayed.
type Account struct {
	Address   string    `json:"address"`
	Balance   Amount    `json:"balance"`
	Nonce     uint64    `json:"nonce"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TreasuryAddress is the internal account that accumulates rake.
const TreasuryAddress = "treasury"

// Escrow holds both players' stakes for the lifetime of a match. An escrow
// settles exactly once, by release (winner takes total minus rake) or by
// refund (each party gets its own contribution back).
type Escrow struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"matchId"`
	PlayerA   string    `json:"playerA"`
	PlayerB   string    `json:"playerB"`
	AmountA   Amount    `json:"amountA"`
	AmountB   Amount    `json:"amountB"`
	Total     Amount    `json:"total"`
	Released  bool      `json:"released"`
	CreatedAt time.Time `json:"createdAt"`
	SettledAt time.Time `json:"settledAt,omitzero"`
}

// EscrowID derives the escrow identifier for a match.
func EscrowID(matchID string) string {
	return "escrow-" + matchID
}

// SettlementVoucher is the signed proof of an escrow settlement. The
// signature covers (escrowID, winner, payout, nonce) so an on-chain treasury
// can verify the payout independently.
type SettlementVoucher struct {
	EscrowID  string    `json:"escrowId"`
	Winner    string    `json:"winner"`
	Payout    Amount    `json:"payout"`
	Rake      Amount    `json:"rake"`
	Nonce     uint64    `json:"nonce"`
	Signature string    `json:"signature,omitempty"`
	SignedAt  time.Time `json:"signedAt"`
}
