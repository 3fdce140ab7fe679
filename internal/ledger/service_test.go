package ledger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/alanyoungcy/stakearena/internal/store/memory"
)

func newTestService(t *testing.T, rakeBps int64) (*Service, *memory.AccountStore, *memory.EscrowStore) {
	t.Helper()
	accounts := memory.NewAccountStore()
	escrows := memory.NewEscrowStore()
	svc := New(accounts, escrows, memory.NewAuditStore(), rakeBps, slog.Default())
	return svc, accounts, escrows
}

func fund(t *testing.T, svc *Service, address string, amount domain.Amount) {
	t.Helper()
	_, err := svc.Deposit(context.Background(), address, amount)
	require.NoError(t, err)
}

func TestDepositAndBalance(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()

	acct, err := svc.Deposit(ctx, "alice", 5_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(5_000_000), acct.Balance)
	assert.Equal(t, uint64(1), acct.Nonce)

	acct, err = svc.Deposit(ctx, "alice", 2_500_000)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(7_500_000), acct.Balance)
	assert.Equal(t, uint64(2), acct.Nonce)

	bal, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(7_500_000), bal)
}

func TestDepositRejectsNonPositiveAmounts(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Deposit(ctx, "alice", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestBalanceUnknownAddressIsZero(t *testing.T) {
	svc, _, _ := newTestService(t, 300)

	bal, err := svc.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), bal)
}

func TestCreateEscrowDebitsBothPlayers(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	escrow, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 3_000_000, 2_800_000)
	require.NoError(t, err)
	assert.Equal(t, "escrow-m1", escrow.ID)
	assert.Equal(t, domain.Amount(5_800_000), escrow.Total)

	balA, _ := svc.Balance(ctx, "alice")
	balB, _ := svc.Balance(ctx, "bob")
	assert.Equal(t, domain.Amount(7_000_000), balA)
	assert.Equal(t, domain.Amount(7_200_000), balB)
}

func TestCreateEscrowInsufficientBalanceDebitsNeither(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 1_000_000)

	_, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 3_000_000, 3_000_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	balA, _ := svc.Balance(ctx, "alice")
	balB, _ := svc.Balance(ctx, "bob")
	assert.Equal(t, domain.Amount(10_000_000), balA)
	assert.Equal(t, domain.Amount(1_000_000), balB)
}

func TestCreateEscrowDuplicateMatch(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()
	fund(t, svc, "alice", 20_000_000)
	fund(t, svc, "bob", 20_000_000)

	_, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 1_000_000, 1_000_000)
	require.NoError(t, err)

	_, err = svc.CreateEscrow(ctx, "m1", "alice", "bob", 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// The rejected second create re-credits both debits.
	balA, _ := svc.Balance(ctx, "alice")
	balB, _ := svc.Balance(ctx, "bob")
	assert.Equal(t, domain.Amount(19_000_000), balA)
	assert.Equal(t, domain.Amount(19_000_000), balB)
}

// flakyAccountStore fails Put for a single address so tests can exercise the
// debit failure paths.
type flakyAccountStore struct {
	*memory.AccountStore
	failPut string
}

func (f *flakyAccountStore) Put(ctx context.Context, account domain.Account) error {
	if account.Address == f.failPut {
		return errors.New("account store down")
	}
	return f.AccountStore.Put(ctx, account)
}

func TestCreateEscrowDebitFailureLeavesNoOpenEscrow(t *testing.T) {
	accounts := &flakyAccountStore{AccountStore: memory.NewAccountStore()}
	escrows := memory.NewEscrowStore()
	svc := New(accounts, escrows, memory.NewAuditStore(), 300, slog.Default())
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	// First debit fails: nothing moved, nothing recorded.
	accounts.failPut = "alice"
	_, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 3_000_000, 3_000_000)
	require.Error(t, err)

	balA, _ := svc.Balance(ctx, "alice")
	balB, _ := svc.Balance(ctx, "bob")
	assert.Equal(t, domain.Amount(10_000_000), balA)
	assert.Equal(t, domain.Amount(10_000_000), balB)

	// Second debit fails: the first debit is rolled back and no escrow row
	// exists, so an open-escrow replay has nothing to refund.
	accounts.failPut = "bob"
	_, err = svc.CreateEscrow(ctx, "m2", "alice", "bob", 3_000_000, 3_000_000)
	require.Error(t, err)

	balA, _ = svc.Balance(ctx, "alice")
	assert.Equal(t, domain.Amount(10_000_000), balA)

	open, err := escrows.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = escrows.Get(ctx, domain.EscrowID("m2"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateEscrowRequiresDistinctPlayers(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	fund(t, svc, "alice", 20_000_000)

	_, err := svc.CreateEscrow(context.Background(), "m1", "alice", "alice", 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestReleaseEscrowPaysWinnerMinusRake(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	escrow, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 5_000_000, 5_000_000)
	require.NoError(t, err)

	payout, rake, err := svc.ReleaseEscrow(ctx, escrow.ID, "alice")
	require.NoError(t, err)

	// 3% of 10_000_000 total.
	assert.Equal(t, domain.Amount(300_000), rake)
	assert.Equal(t, domain.Amount(9_700_000), payout)

	balA, _ := svc.Balance(ctx, "alice")
	balB, _ := svc.Balance(ctx, "bob")
	treasury, _ := svc.Balance(ctx, domain.TreasuryAddress)
	assert.Equal(t, domain.Amount(14_700_000), balA)
	assert.Equal(t, domain.Amount(5_000_000), balB)
	assert.Equal(t, domain.Amount(300_000), treasury)

	// Conservation: total funds in the system are unchanged.
	assert.Equal(t, domain.Amount(20_000_000), balA+balB+treasury)
}

func TestReleaseEscrowSingleUse(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	escrow, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 5_000_000, 5_000_000)
	require.NoError(t, err)

	_, _, err = svc.ReleaseEscrow(ctx, escrow.ID, "alice")
	require.NoError(t, err)

	_, _, err = svc.ReleaseEscrow(ctx, escrow.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrEscrowReleased)

	err = svc.RefundEscrow(ctx, escrow.ID)
	assert.ErrorIs(t, err, domain.ErrEscrowReleased)
}

func TestReleaseEscrowRejectsNonParticipant(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	escrow, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 5_000_000, 5_000_000)
	require.NoError(t, err)

	_, _, err = svc.ReleaseEscrow(ctx, escrow.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrInvalidWinner)

	// The escrow stays open after a rejected release.
	got, err := svc.Escrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.False(t, got.Released)
}

func TestReleaseEscrowUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t, 300)

	_, _, err := svc.ReleaseEscrow(context.Background(), "escrow-missing", "alice")
	assert.ErrorIs(t, err, domain.ErrEscrowNotFound)
}

func TestRefundEscrowReturnsStakes(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	escrow, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 4_000_000, 3_800_000)
	require.NoError(t, err)

	require.NoError(t, svc.RefundEscrow(ctx, escrow.ID))

	// No rake on refunds; both players end where they started.
	balA, _ := svc.Balance(ctx, "alice")
	balB, _ := svc.Balance(ctx, "bob")
	treasury, _ := svc.Balance(ctx, domain.TreasuryAddress)
	assert.Equal(t, domain.Amount(10_000_000), balA)
	assert.Equal(t, domain.Amount(10_000_000), balB)
	assert.Equal(t, domain.Amount(0), treasury)
}

func TestZeroRake(t *testing.T) {
	svc, _, _ := newTestService(t, 0)
	ctx := context.Background()
	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	escrow, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 5_000_000, 5_000_000)
	require.NoError(t, err)

	payout, rake, err := svc.ReleaseEscrow(ctx, escrow.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), rake)
	assert.Equal(t, domain.Amount(10_000_000), payout)
}

func TestNonceIncrementsOnEveryMutation(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()

	fund(t, svc, "alice", 10_000_000)
	fund(t, svc, "bob", 10_000_000)

	escrow, err := svc.CreateEscrow(ctx, "m1", "alice", "bob", 1_000_000, 1_000_000)
	require.NoError(t, err)
	_, _, err = svc.ReleaseEscrow(ctx, escrow.ID, "alice")
	require.NoError(t, err)

	acct, err := svc.Account(ctx, "alice")
	require.NoError(t, err)
	// deposit, escrow debit, release credit
	assert.Equal(t, uint64(3), acct.Nonce)

	acct, err = svc.Account(ctx, "bob")
	require.NoError(t, err)
	// deposit, escrow debit
	assert.Equal(t, uint64(2), acct.Nonce)
}

func TestAddressesAreNormalized(t *testing.T) {
	svc, _, _ := newTestService(t, 300)
	ctx := context.Background()

	fund(t, svc, "0xABCDEF", 1_000_000)
	bal, err := svc.Balance(ctx, "0xabcdef")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(1_000_000), bal)
}
