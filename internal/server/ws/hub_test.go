package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/alanyoungcy/stakearena/internal/service"
)

type fakeGateway struct {
	mu          sync.Mutex
	finds       []string
	readies     []string
	disconnects []string
	deposits    []domain.Amount
}

func (f *fakeGateway) Connect(_ context.Context, address string) (service.Session, error) {
	if address == "" {
		return service.Session{}, domain.ErrUnauthorized
	}
	return service.Session{Address: address, ResumeToken: "token-" + address}, nil
}

func (f *fakeGateway) Resume(ctx context.Context, token string) (service.Session, error) {
	address, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return service.Session{}, domain.ErrUnauthorized
	}
	sess, err := f.Connect(ctx, address)
	sess.Reconnected = true
	return sess, err
}

func (f *fakeGateway) Deposit(_ context.Context, address string, amount domain.Amount) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits = append(f.deposits, amount)
	return domain.Account{Address: address, Balance: amount}, nil
}

func (f *fakeGateway) FindMatch(_ context.Context, address string, _ domain.GameType, _ domain.Amount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, address)
	return nil
}

func (f *fakeGateway) CancelSearch(context.Context, string) error { return nil }

func (f *fakeGateway) Ready(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readies = append(f.readies, address)
	return nil
}

func (f *fakeGateway) GameAction(context.Context, string, string, json.RawMessage) error {
	return nil
}

func (f *fakeGateway) Heartbeat(context.Context, string) {}

func (f *fakeGateway) Disconnect(_ context.Context, address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, address)
}

func (f *fakeGateway) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finds)
}

func (f *fakeGateway) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disconnects)
}

func newTestHub(t *testing.T, gw *fakeGateway) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, slog.Default())
	hub.SetGateway(gw)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHandleWSRejectsAnonymous(t *testing.T) {
	_, srv := newTestHub(t, &fakeGateway{})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectDeliversSession(t *testing.T) {
	hub, srv := newTestHub(t, &fakeGateway{})

	conn := dial(t, srv, "address=0xalice")
	ev := readEvent(t, conn)

	assert.Equal(t, domain.EventConnected, ev.Type)
	var sess service.Session
	require.NoError(t, json.Unmarshal(ev.Payload, &sess))
	assert.Equal(t, "0xalice", sess.Address)
	assert.Equal(t, "token-0xalice", sess.ResumeToken)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestResumeToken(t *testing.T) {
	_, srv := newTestHub(t, &fakeGateway{})

	conn := dial(t, srv, "token=token-0xbob")
	ev := readEvent(t, conn)

	assert.Equal(t, domain.EventConnected, ev.Type)
	var sess service.Session
	require.NoError(t, json.Unmarshal(ev.Payload, &sess))
	assert.Equal(t, "0xbob", sess.Address)
	assert.True(t, sess.Reconnected)
}

func TestIntentDispatch(t *testing.T) {
	gw := &fakeGateway{}
	_, srv := newTestHub(t, gw)

	conn := dial(t, srv, "address=0xalice")
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "findMatch",
		"payload": map[string]any{
			"gameType": domain.GameReactionRace,
			"stake":    1_000_000,
		},
	}))

	assert.Eventually(t, func() bool { return gw.findCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownIntentReturnsError(t *testing.T) {
	_, srv := newTestHub(t, &fakeGateway{})

	conn := dial(t, srv, "address=0xalice")
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "teleport"}))

	ev := readEvent(t, conn)
	assert.Equal(t, domain.EventError, ev.Type)
}

func TestPublishToPlayerReachesLocalSocket(t *testing.T) {
	hub, srv := newTestHub(t, &fakeGateway{})

	conn := dial(t, srv, "address=0xalice")
	readEvent(t, conn)

	ev, err := domain.NewEvent("balanceUpdate", map[string]any{"balance": 42})
	require.NoError(t, err)
	hub.PublishToPlayer("0xalice", ev)

	got := readEvent(t, conn)
	assert.Equal(t, "balanceUpdate", got.Type)
}

func TestSessionDisplacement(t *testing.T) {
	gw := &fakeGateway{}
	hub, srv := newTestHub(t, gw)

	first := dial(t, srv, "address=0xalice")
	readEvent(t, first)

	second := dial(t, srv, "address=0xalice")
	readEvent(t, second)

	assert.Equal(t, 1, hub.ClientCount())

	// The displaced socket is closed by the hub and its teardown must not
	// disconnect the new session.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.Event
	assert.Error(t, first.ReadJSON(&ev))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, gw.disconnectCount())
	assert.Equal(t, 1, hub.ClientCount())
}
