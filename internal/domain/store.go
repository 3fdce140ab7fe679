package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists player balances and nonces. Get on an unknown
// address returns a zero-balance account, not ErrNotFound; accounts come
// into existence on first write.
type AccountStore interface {
	Get(ctx context.Context, address string) (Account, error)
	Put(ctx context.Context, account Account) error
}

// EscrowStore persists escrow records.
type EscrowStore interface {
	Create(ctx context.Context, escrow Escrow) error
	Get(ctx context.Context, id string) (Escrow, error)
	MarkSettled(ctx context.Context, id string, at time.Time) error
	ListOpen(ctx context.Context) ([]Escrow, error)
}

// MatchRecordStore persists settled match results.
type MatchRecordStore interface {
	Insert(ctx context.Context, record MatchRecord) error
	ListByPlayer(ctx context.Context, address string, opts ListOpts) ([]MatchRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]MatchRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// StatsStore persists per-player aggregates.
type StatsStore interface {
	Get(ctx context.Context, address string) (PlayerStats, error)
	Put(ctx context.Context, stats PlayerStats) error
	Top(ctx context.Context, minMatches, limit int) ([]PlayerStats, error)
}

// VoucherStore persists signed settlement vouchers.
type VoucherStore interface {
	Put(ctx context.Context, voucher SettlementVoucher) error
	Get(ctx context.Context, escrowID string) (SettlementVoucher, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
