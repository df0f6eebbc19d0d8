// Package hub implements the Broadcast Hub (§4.I) and the client-facing
// half of the Control Plane (§4.K): a gorilla/websocket connection hub
// extended with per-mint room membership on top of the teacher's single
// global Hub{clients, broadcast, register, unregister} in
// internal/api/websocket.go. Unlike the teacher's one global broadcast
// channel, fan-out here is scoped per mint room, subscribed once to the
// Cache Store's "price_update" channel.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"splpulse/internal/models"
	"splpulse/internal/validator"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// mintValidator is the subset of the Token Validator the hub needs.
type mintValidator interface {
	Validate(ctx context.Context, mint string) (validator.Result, error)
}

// pricer is the subset of the Pricing Engine the hub needs to serve an
// initial snapshot at subscribe time.
type pricer interface {
	CurrentOf(ctx context.Context, mint string) (*models.PriceSnapshot, error)
	UpdateMint(ctx context.Context, mint string) (models.PriceSnapshot, error)
}

// enroller is the subset of the Scheduler the hub needs.
type enroller interface {
	Enrol(ctx context.Context, mint string) error
}

// priceChannel is the subset of the Cache Store the hub subscribes to.
type priceChannel interface {
	Subscribe(channel string, handler func(message []byte)) (unsubscribe func())
}

// Connection is one client-facing websocket connection and its
// subscription state (§4.I "per-connection weak reference").
type Connection struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	socketID string

	mu   sync.Mutex
	subs map[string]bool
}

// Hub is the Broadcast Hub.
type Hub struct {
	valid mintValidator
	eng   pricer
	sched enroller

	mu    sync.Mutex
	rooms map[string]map[*Connection]bool // "token:<mint>" -> members

	detach func()
}

// New constructs a Hub and subscribes it once to the Cache Store's
// price_update channel (§4.I "Fan-out").
func New(store priceChannel, v mintValidator, eng pricer, sched enroller) *Hub {
	h := &Hub{
		valid: v,
		eng:   eng,
		sched: sched,
		rooms: make(map[string]map[*Connection]bool),
	}
	h.detach = store.Subscribe("price_update", h.onPriceUpdate)
	return h
}

// Close detaches the hub from the Cache Store.
func (h *Hub) Close() {
	if h.detach != nil {
		h.detach()
	}
}

func roomKey(mint string) string { return "token:" + mint }

// ServeWS upgrades the request to a websocket connection and serves it
// on the /ws namespace (§4.K) until disconnect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] upgrade error: %v", err)
		return
	}

	c := &Connection{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 64),
		socketID: uuid.NewString(),
		subs:     make(map[string]bool),
	}

	go c.writePump()
	h.emitConnected(c)

	if legacy := strings.TrimSpace(r.URL.Query().Get("token")); legacy != "" {
		h.subscribe(r.Context(), c, legacy)
	}

	c.readPump()
}

func (h *Hub) emitConnected(c *Connection) {
	c.enqueue(connectedMsg{
		Type:     "connected",
		SocketID: c.socketID,
		Message:  "connected to splpulse",
		Usage:    `send "<mint>,subscribe" or "<mint>,unsubscribe"`,
	})
}

func (c *Connection) readPump() {
	defer c.hub.disconnect(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.hub.handleMessage(c, string(raw))
	}
}

func (c *Connection) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// enqueue marshals v and queues it for delivery, dropping the frame if
// the connection's send buffer is full rather than blocking the hub.
func (c *Connection) enqueue(v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
		log.Printf("[hub] send buffer full for %s, dropping frame", c.socketID)
	}
}

// handleMessage parses "<mint>,<action>" (§4.K) and dispatches subscribe
// or unsubscribe. Malformed input yields error{message} without
// disrupting other subscriptions.
func (h *Hub) handleMessage(c *Connection, raw string) {
	parts := strings.SplitN(strings.TrimSpace(raw), ",", 2)
	if len(parts) != 2 {
		c.enqueue(errorMsg{Type: "error", Message: "expected \"<mint>,<action>\""})
		return
	}
	mint := strings.TrimSpace(parts[0])
	action := strings.ToLower(strings.TrimSpace(parts[1]))

	switch action {
	case "subscribe":
		h.subscribe(context.Background(), c, mint)
	case "unsubscribe":
		h.unsubscribeMint(c, mint)
	default:
		c.enqueue(errorMsg{Type: "error", Message: "unknown action: " + action})
	}
}

// subscribe implements §4.I subscribe(conn, mint).
func (h *Hub) subscribe(ctx context.Context, c *Connection, mint string) {
	result, err := h.valid.Validate(ctx, mint)
	if err != nil || !result.Valid {
		reason := "invalid mint"
		if result.Reason != "" {
			reason = result.Reason
		}
		c.enqueue(subscriptionErrorMsg{
			Type:    "subscription_error",
			Mint:    mint,
			Message: reason,
			Code:    "INVALID_TOKEN_MINT",
		})
		return
	}

	c.mu.Lock()
	alreadySubscribed := c.subs[mint]
	if !alreadySubscribed {
		c.subs[mint] = true
	}
	total := len(c.subs)
	c.mu.Unlock()

	if alreadySubscribed {
		c.enqueue(subscriptionStatusMsg{Type: "subscription_status", Mint: mint, Status: "already_subscribed"})
		return
	}

	h.joinRoom(mint, c)

	snap, err := h.eng.CurrentOf(ctx, mint)
	if err != nil {
		log.Printf("[hub] currentOf(%s) failed: %v", mint, err)
	}
	if snap == nil {
		if fresh, err := h.eng.UpdateMint(ctx, mint); err == nil {
			snap = &fresh
		} else {
			log.Printf("[hub] initial updateMint(%s) failed: %v", mint, err)
		}
	}
	if err := h.sched.Enrol(ctx, mint); err != nil {
		log.Printf("[hub] enrol(%s) failed: %v", mint, err)
	}

	if snap != nil {
		c.enqueue(priceUpdateMsg{Type: "price_update", Data: *snap})
	}
	c.enqueue(subscriptionSuccessMsg{Type: "subscription_success", Mint: mint, TotalSubscriptions: total})
}

// unsubscribeMint implements §4.I unsubscribe.
func (h *Hub) unsubscribeMint(c *Connection, mint string) {
	c.mu.Lock()
	delete(c.subs, mint)
	total := len(c.subs)
	c.mu.Unlock()

	h.leaveRoom(mint, c)
	c.enqueue(unsubscriptionSuccessMsg{Type: "unsubscription_success", Mint: mint, TotalSubscriptions: total})
}

func (h *Hub) joinRoom(mint string, c *Connection) {
	key := roomKey(mint)
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[key]
	if !ok {
		room = make(map[*Connection]bool)
		h.rooms[key] = room
	}
	room[c] = true
}

func (h *Hub) leaveRoom(mint string, c *Connection) {
	key := roomKey(mint)
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, key)
	}
}

// disconnect leaves every room the connection had joined and drops its
// record (§4.I "Disconnect semantics").
func (h *Hub) disconnect(c *Connection) {
	c.mu.Lock()
	mints := make([]string, 0, len(c.subs))
	for m := range c.subs {
		mints = append(mints, m)
	}
	c.mu.Unlock()

	for _, m := range mints {
		h.leaveRoom(m, c)
	}
	close(c.send)
}

// onPriceUpdate fans a published snapshot out to every member of its
// mint's room (§4.I "Fan-out").
func (h *Hub) onPriceUpdate(raw []byte) {
	var snap models.PriceSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Printf("[hub] malformed price_update payload: %v", err)
		return
	}

	key := roomKey(snap.Mint)
	h.mu.Lock()
	members := make([]*Connection, 0, len(h.rooms[key]))
	for c := range h.rooms[key] {
		members = append(members, c)
	}
	h.mu.Unlock()

	msg := priceUpdateMsg{Type: "price_update", Data: snap}
	for _, c := range members {
		c.enqueue(msg)
	}
}
