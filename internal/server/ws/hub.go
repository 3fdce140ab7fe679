package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/alanyoungcy/stakearena/internal/service"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing events per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// gateway is the slice of the session gateway the hub drives.
type gateway interface {
	Connect(ctx context.Context, address string) (service.Session, error)
	Resume(ctx context.Context, token string) (service.Session, error)
	Deposit(ctx context.Context, address string, amount domain.Amount) (domain.Account, error)
	FindMatch(ctx context.Context, address string, gameType domain.GameType, stake domain.Amount) error
	CancelSearch(ctx context.Context, address string) error
	Ready(ctx context.Context, address string) error
	GameAction(ctx context.Context, address, actionType string, payload json.RawMessage) error
	Heartbeat(ctx context.Context, address string)
	Disconnect(ctx context.Context, address string)
}

// client is one authenticated WebSocket session.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	address string
	send    chan domain.Event
}

// intentMsg is the JSON envelope a client sends for every request.
type intentMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// findMatchPayload carries a findMatch intent.
type findMatchPayload struct {
	GameType domain.GameType `json:"gameType"`
	Stake    domain.Amount   `json:"stake"`
}

// gameActionPayload carries a gameAction intent.
type gameActionPayload struct {
	ActionType string          `json:"actionType"`
	Action     json.RawMessage `json:"action"`
}

// depositPayload carries a deposit intent.
type depositPayload struct {
	Amount domain.Amount `json:"amount"`
}

// busEnvelope wraps an event for cross-process delivery over the signal bus.
type busEnvelope struct {
	Address string       `json:"address"`
	Event   domain.Event `json:"event"`
}

// Hub owns every live player session on this process. It implements
// domain.EventPublisher: events for a locally connected player go straight to
// the socket, everything else rides the signal bus so a sibling process can
// deliver it.
type Hub struct {
	gateway gateway
	bus     domain.SignalBus
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a Hub. bus may be nil for single-process deployments.
// SetGateway must be called before the hub serves connections; the hub is
// built first because the gateway publishes through it.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[string]*client),
	}
}

// SetGateway attaches the session gateway.
func (h *Hub) SetGateway(gw gateway) {
	h.gateway = gw
}

// Run bridges cross-process player events from the signal bus into local
// sockets. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	msgCh, err := h.bus.Subscribe(ctx, domain.PlayerChannel("*"))
	if err != nil {
		return err
	}
	h.logger.Info("player event bridge started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				h.closeAll()
				return nil
			}
			var env busEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				h.logger.Warn("bad bus envelope", slog.String("error", err.Error()))
				continue
			}
			h.deliverLocal(env.Address, env.Event)
		}
	}
}

// PublishToPlayer delivers an event to a player: directly when their socket
// lives on this process, via the signal bus otherwise. Implements
// domain.EventPublisher.
func (h *Hub) PublishToPlayer(address string, ev domain.Event) {
	if h.deliverLocal(address, ev) {
		return
	}
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(busEnvelope{Address: address, Event: ev})
	if err != nil {
		h.logger.Warn("marshal bus envelope failed", slog.String("error", err.Error()))
		return
	}
	if err := h.bus.Publish(context.Background(), domain.PlayerChannel(address), payload); err != nil {
		h.logger.Warn("bus publish failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
	}
}

// deliverLocal enqueues the event for a locally connected player. Returns
// false when the player has no socket on this process.
func (h *Hub) deliverLocal(address string, ev domain.Event) bool {
	// The send happens under the read lock so a concurrent register or
	// closeAll cannot close the channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[address]
	if !ok {
		return false
	}

	select {
	case c.send <- ev:
	default:
		h.logger.Warn("dropping event for slow client",
			slog.String("address", address),
			slog.String("type", ev.Type),
		)
	}
	return true
}

// ClientCount returns the number of sessions on this process.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS authenticates the request, upgrades it, and runs the session.
// Clients identify with ?address= on first connect or ?token= to resume.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sess service.Session
	var err error
	switch {
	case r.URL.Query().Get("token") != "":
		sess, err = h.gateway.Resume(ctx, r.URL.Query().Get("token"))
	case r.URL.Query().Get("address") != "":
		sess, err = h.gateway.Connect(ctx, r.URL.Query().Get("address"))
	default:
		http.Error(w, `{"error":"address or token required"}`, http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Warn("session auth failed", slog.String("error", err.Error()))
		http.Error(w, `{"error":"authentication failed"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		address: sess.Address,
		send:    make(chan domain.Event, sendBufferSize),
	}
	h.register(c)

	h.logger.Info("player connected",
		slog.String("address", c.address),
		slog.Bool("reconnected", sess.Reconnected),
		slog.Int("total_clients", h.ClientCount()),
	)

	if ev, err := domain.NewEvent(domain.EventConnected, sess); err == nil {
		c.send <- ev
	}

	go c.writePump()
	go c.readPump()
}

// register installs the client, displacing any previous session for the same
// address. The displaced socket is closed; its read pump must not tear down
// the new session's state.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	old := h.clients[c.address]
	h.clients[c.address] = c
	h.mu.Unlock()

	if old != nil {
		close(old.send)
		old.conn.Close()
	}
}

// unregister removes the client if it is still the registered session for its
// address. Returns false when a newer session already displaced it.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.address] != c {
		return false
	}
	delete(h.clients, c.address)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for addr, c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, addr)
	}
}

// readPump reads intents from the socket and dispatches them through the
// gateway until the connection drops.
func (c *client) readPump() {
	defer func() {
		if c.hub.unregister(c) {
			// Only the current session triggers the grace window; a displaced
			// socket closing must not disconnect its successor.
			c.hub.gateway.Disconnect(context.Background(), c.address)
			c.hub.logger.Info("player disconnected",
				slog.String("address", c.address),
				slog.Int("total_clients", c.hub.ClientCount()),
			)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.gateway.Heartbeat(context.Background(), c.address)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("address", c.address),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var intent intentMsg
		if err := json.Unmarshal(message, &intent); err != nil {
			c.sendError("malformed message")
			continue
		}
		c.handleIntent(intent)
	}
}

// handleIntent dispatches one client request. Gateway rejections come back as
// error events on the same socket; the connection stays up.
func (c *client) handleIntent(intent intentMsg) {
	ctx := context.Background()

	var err error
	switch intent.Type {
	case "findMatch":
		var p findMatchPayload
		if err = json.Unmarshal(intent.Payload, &p); err == nil {
			err = c.hub.gateway.FindMatch(ctx, c.address, p.GameType, p.Stake)
		}
	case "cancelSearch":
		err = c.hub.gateway.CancelSearch(ctx, c.address)
	case "ready":
		err = c.hub.gateway.Ready(ctx, c.address)
	case "gameAction":
		var p gameActionPayload
		if err = json.Unmarshal(intent.Payload, &p); err == nil {
			err = c.hub.gateway.GameAction(ctx, c.address, p.ActionType, p.Action)
		}
	case "deposit":
		var p depositPayload
		if err = json.Unmarshal(intent.Payload, &p); err == nil {
			_, err = c.hub.gateway.Deposit(ctx, c.address, p.Amount)
		}
	case "ping":
		c.hub.gateway.Heartbeat(ctx, c.address)
	default:
		c.sendError("unknown intent " + intent.Type)
		return
	}

	if err != nil {
		c.hub.logger.Debug("intent rejected",
			slog.String("address", c.address),
			slog.String("intent", intent.Type),
			slog.String("error", err.Error()),
		)
		c.sendError(err.Error())
	}
}

// sendError pushes an error event without blocking the read loop.
func (c *client) sendError(msg string) {
	ev, err := domain.NewEvent(domain.EventError, map[string]string{"message": msg})
	if err != nil {
		return
	}
	select {
	case c.send <- ev:
	default:
	}
}

// writePump pumps events from the hub to the socket as JSON text frames and
// sends periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				c.hub.logger.Warn("marshal event failed",
					slog.String("type", ev.Type),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
