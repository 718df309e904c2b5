package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/pumpfight/internal/domain"
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

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	// backlogSize is how many recent stream entries a subscribe replays.
	backlogSize = 50
)

// Frame formats a client can ask for with ?format=.
const (
	FormatProto = "proto" // structpb.Struct, binary frames
	FormatJSON  = "json"  // the event JSON, text frames
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a single WebSocket connection. An empty token set means
// every token. send is only written through enqueue and closed through close.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan outbound
	format string
	tokens map[common.Address]bool
	mu     sync.RWMutex

	sendMu sync.Mutex
	closed bool
}

type outbound struct {
	token common.Address
	data  []byte // event JSON
}

// subscribeMsg is the JSON message a client sends to pick tokens.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Tokens []string `json:"tokens"`
}

// Hub bridges the signal bus to connected WebSocket clients. It listens on
// every token channel and routes each event to clients watching its token.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
	done       chan struct{} // closed when Run returns
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// The loop exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	msgCh, err := h.bus.Subscribe(ctx, domain.ChannelAllTokens)
	if err != nil {
		return err
	}
	go h.forward(ctx, msgCh)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.watches(msg.token) && !c.enqueue(msg) {
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// forward decodes the token of each bus message and hands it to the loop.
func (h *Hub) forward(ctx context.Context, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: token subscription closed")
				return
			}
			var head struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(data, &head); err != nil || !common.IsHexAddress(head.Token) {
				continue
			}
			select {
			case h.broadcast <- outbound{token: common.HexToAddress(head.Token), data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. ?token=0x.. may be repeated to pre-select tokens.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan outbound, sendBufferSize),
		format: FormatProto,
		tokens: make(map[common.Address]bool),
	}
	if strings.EqualFold(r.URL.Query().Get("format"), FormatJSON) {
		c.format = FormatJSON
	}
	for _, t := range r.URL.Query()["token"] {
		if common.IsHexAddress(t) {
			c.tokens[common.HexToAddress(t)] = true
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendHello()
	for t := range c.tokens {
		c.sendBacklog(r.Context(), t)
	}

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump handles subscription requests until the connection closes.
func (c *client) readPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			for _, t := range c.handleSubscription(sub) {
				c.sendBacklog(context.Background(), t)
			}
		}
	}
}

// leave unregisters the client, or returns at once if the hub has stopped.
func (c *client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// handleSubscription applies a subscribe or unsubscribe request and returns
// the newly added tokens.
func (c *client) handleSubscription(msg subscribeMsg) []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []common.Address
	for _, raw := range msg.Tokens {
		if !common.IsHexAddress(raw) {
			continue
		}
		t := common.HexToAddress(raw)
		switch msg.Action {
		case "subscribe":
			if !c.tokens[t] {
				c.tokens[t] = true
				added = append(added, t)
			}
		case "unsubscribe":
			delete(c.tokens, t)
		}
	}
	return added
}

// watches reports whether the client wants events of token.
func (c *client) watches(token common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens) == 0 || c.tokens[token]
}

// sendHello tells the client the connection is live.
func (c *client) sendHello() {
	data, err := json.Marshal(map[string]any{
		"type":           "hello",
		"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
	})
	if err != nil {
		return
	}
	c.enqueue(outbound{data: data})
}

// sendBacklog replays recent events of token from its stream.
func (c *client) sendBacklog(ctx context.Context, token common.Address) {
	msgs, err := c.hub.bus.StreamRead(ctx, domain.EventStream(token), "0", 0)
	if err != nil {
		c.hub.logger.Warn("ws: backlog read failed",
			slog.String("token", token.Hex()),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(msgs) > backlogSize {
		msgs = msgs[len(msgs)-backlogSize:]
	}
	for _, m := range msgs {
		c.enqueue(outbound{token: token, data: m.Payload})
	}
}

// enqueue queues msg without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *client) enqueue(msg outbound) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close ends the write pump. Later enqueues are dropped.
func (c *client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// Proto clients get structpb binary frames; JSON clients get text frames.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			kind, frame, err := encodeFrame(c.format, msg.data)
			if err != nil {
				c.hub.logger.Warn("ws: encode frame failed", slog.String("error", err.Error()))
				continue
			}
			if err := c.conn.WriteMessage(kind, frame); err != nil {
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

// encodeFrame converts an event JSON payload to the client's wire format.
func encodeFrame(format string, data []byte) (int, []byte, error) {
	if format == FormatJSON {
		return websocket.TextMessage, data, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return 0, nil, err
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return 0, nil, err
	}
	b, err := proto.Marshal(st)
	if err != nil {
		return 0, nil, err
	}
	return websocket.BinaryMessage, b, nil
}
