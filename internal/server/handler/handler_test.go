package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

type fakeRanking struct {
	entries []domain.PlayerStats
	calls   int
}

func (f *fakeRanking) Leaderboard(_ context.Context, _ int) ([]domain.PlayerStats, error) {
	f.calls++
	return f.entries, nil
}

type fakeLeaderboardCache struct {
	entries []domain.PlayerStats
	sets    int
}

func (f *fakeLeaderboardCache) SetLeaderboard(_ context.Context, entries []domain.PlayerStats, _ time.Duration) error {
	f.entries = entries
	f.sets++
	return nil
}

func (f *fakeLeaderboardCache) GetLeaderboard(_ context.Context) ([]domain.PlayerStats, error) {
	if f.entries == nil {
		return nil, domain.ErrNotFound
	}
	return f.entries, nil
}

type fakePlayerStats struct {
	stats   domain.PlayerStats
	history []domain.MatchRecord
}

func (f *fakePlayerStats) PlayerStats(_ context.Context, address string) (domain.PlayerStats, error) {
	st := f.stats
	st.Address = address
	return st, nil
}

func (f *fakePlayerStats) MatchHistory(_ context.Context, _ string, _ int) ([]domain.MatchRecord, error) {
	return f.history, nil
}

type fakeAccounts struct {
	account domain.Account
}

func (f *fakeAccounts) Account(_ context.Context, address string) (domain.Account, error) {
	a := f.account
	a.Address = address
	return a, nil
}

type fakeVoucherStore struct {
	vouchers map[string]domain.SettlementVoucher
}

func (f *fakeVoucherStore) Put(_ context.Context, v domain.SettlementVoucher) error {
	f.vouchers[v.EscrowID] = v
	return nil
}

func (f *fakeVoucherStore) Get(_ context.Context, escrowID string) (domain.SettlementVoucher, error) {
	v, ok := f.vouchers[escrowID]
	if !ok {
		return domain.SettlementVoucher{}, domain.ErrNotFound
	}
	return v, nil
}

type fakePlatform struct {
	stats domain.PlatformStats
}

func (f *fakePlatform) Stats(context.Context) domain.PlatformStats { return f.stats }

func testLogger() *slog.Logger { return slog.Default() }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetLeaderboardCacheMissThenHit(t *testing.T) {
	ranking := &fakeRanking{entries: []domain.PlayerStats{{Address: "0xalice", Rating: 1016}}}
	cache := &fakeLeaderboardCache{}
	h := NewLeaderboardHandler(ranking, cache, testLogger())

	// First request misses the cache and fills it.
	rec := httptest.NewRecorder()
	h.GetLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, 1, ranking.calls)
	assert.Equal(t, 1, cache.sets)

	// Second request is served from the cache.
	rec = httptest.NewRecorder()
	h.GetLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, 1, ranking.calls)
}

func TestGetLeaderboardExplicitLimitSkipsCache(t *testing.T) {
	ranking := &fakeRanking{}
	cache := &fakeLeaderboardCache{entries: []domain.PlayerStats{{Address: "0xalice"}}}
	h := NewLeaderboardHandler(ranking, cache, testLogger())

	rec := httptest.NewRecorder()
	h.GetLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ranking.calls)
	assert.Equal(t, 0, cache.sets)
}

func TestGetLeaderboardBadLimit(t *testing.T) {
	h := NewLeaderboardHandler(&fakeRanking{}, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func newPlayerRequest(target, address string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.SetPathValue("address", address)
	return req
}

func TestGetPlayerStats(t *testing.T) {
	h := NewPlayerHandler(
		&fakePlayerStats{stats: domain.PlayerStats{Rating: 1016, Wins: 2, Matches: 4}},
		&fakeAccounts{},
		testLogger(),
	)

	rec := httptest.NewRecorder()
	h.GetStats(rec, newPlayerRequest("/api/players/0xalice/stats", "0xalice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 50.0, body["winRate"])
}

func TestGetPlayerHistoryEmpty(t *testing.T) {
	h := NewPlayerHandler(&fakePlayerStats{}, &fakeAccounts{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetHistory(rec, newPlayerRequest("/api/players/0xalice/history", "0xalice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	history, ok := body["history"].([]any)
	require.True(t, ok)
	assert.Empty(t, history)
}

func TestGetPlayerBalance(t *testing.T) {
	h := NewPlayerHandler(&fakePlayerStats{},
		&fakeAccounts{account: domain.Account{Balance: 42_000_000, Nonce: 7}},
		testLogger(),
	)

	rec := httptest.NewRecorder()
	h.GetBalance(rec, newPlayerRequest("/api/players/0xalice/balance", "0xalice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "0xalice", body["address"])
	assert.Equal(t, float64(42_000_000), body["balance"])
}

func TestGetPlayerMissingAddress(t *testing.T) {
	h := NewPlayerHandler(&fakePlayerStats{}, &fakeAccounts{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetStats(rec, newPlayerRequest("/api/players//stats", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetVoucher(t *testing.T) {
	store := &fakeVoucherStore{vouchers: map[string]domain.SettlementVoucher{
		"escrow-m1": {EscrowID: "escrow-m1", Winner: "0xalice", Payout: 9_700_000, Signature: "0xsig"},
	}}
	h := NewVoucherHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/vouchers/escrow-m1", nil)
	req.SetPathValue("escrowId", "escrow-m1")
	rec := httptest.NewRecorder()
	h.GetVoucher(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "0xsig", body["signature"])

	req = httptest.NewRequest(http.MethodGet, "/api/vouchers/escrow-unknown", nil)
	req.SetPathValue("escrowId", "escrow-unknown")
	rec = httptest.NewRecorder()
	h.GetVoucher(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPlatformStats(t *testing.T) {
	h := NewPlatformHandler(&fakePlatform{stats: domain.PlatformStats{
		OnlinePlayers: 12, SearchingPlayers: 3, ActiveMatches: 4,
	}})

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(12), body["onlinePlayers"])
	assert.Equal(t, float64(3), body["searchingPlayers"])
	assert.Equal(t, float64(4), body["activeMatches"])
}
