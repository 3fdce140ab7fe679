package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// VoucherStore implements domain.VoucherStore using PostgreSQL.
type VoucherStore struct {
	pool *pgxpool.Pool
}

// NewVoucherStore creates a new VoucherStore backed by the given connection pool.
func NewVoucherStore(pool *pgxpool.Pool) *VoucherStore {
	return &VoucherStore{pool: pool}
}

// Put upserts the signed voucher for an escrow.
func (s *VoucherStore) Put(ctx context.Context, voucher domain.SettlementVoucher) error {
	const query = `
		INSERT INTO settlement_vouchers (
			escrow_id, winner, payout, rake, nonce, signature, signed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (escrow_id) DO UPDATE SET
			winner    = EXCLUDED.winner,
			payout    = EXCLUDED.payout,
			rake      = EXCLUDED.rake,
			nonce     = EXCLUDED.nonce,
			signature = EXCLUDED.signature,
			signed_at = EXCLUDED.signed_at`

	_, err := s.pool.Exec(ctx, query,
		voucher.EscrowID, voucher.Winner,
		int64(voucher.Payout), int64(voucher.Rake),
		voucher.Nonce, voucher.Signature, voucher.SignedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put voucher %s: %w", voucher.EscrowID, err)
	}
	return nil
}

// Get retrieves the voucher for an escrow.
func (s *VoucherStore) Get(ctx context.Context, escrowID string) (domain.SettlementVoucher, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT escrow_id, winner, payout, rake, nonce, signature, signed_at
		 FROM settlement_vouchers WHERE escrow_id = $1`, escrowID)

	var v domain.SettlementVoucher
	var payout, rake int64
	err := row.Scan(&v.EscrowID, &v.Winner, &payout, &rake, &v.Nonce, &v.Signature, &v.SignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementVoucher{}, fmt.Errorf("postgres: voucher %s: %w", escrowID, domain.ErrNotFound)
		}
		return domain.SettlementVoucher{}, fmt.Errorf("postgres: get voucher %s: %w", escrowID, err)
	}
	v.Payout = domain.Amount(payout)
	v.Rake = domain.Amount(rake)
	return v, nil
}

// Compile-time interface check.
var _ domain.VoucherStore = (*VoucherStore)(nil)
