// Package monitor streams outgoing OSC traffic to websocket clients.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vr2osc/internal/osc"
)

// ============================================================================
// Hub
// ============================================================================
// The driver publishes each sent bundle; the hub turns it into "bundle"
// frames on its own goroutine. A client may subscribe to address prefixes,
// and the hub encodes one frame per distinct subscription per bundle.
// A client whose queue is full is dropped instead of delaying the others.
// ============================================================================

type Hub struct {
	logger  *slog.Logger
	sendBuf int
	now     func() time.Time

	batches chan batch

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type HubConfig struct {
	// SendBuf is the number of frames queued per client before it is
	// dropped. Defaults to 32.
	SendBuf int

	// QueueLen is the number of published bundles waiting for the hub.
	// Defaults to 128.
	QueueLen int
}

// batch is one published bundle.
type batch struct {
	ts   time.Time
	msgs []osc.Message
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 128
	}
	return &Hub{
		logger:  logger,
		sendBuf: cfg.SendBuf,
		now:     time.Now,
		batches: make(chan batch, cfg.QueueLen),
		clients: make(map[*client]struct{}),
	}
}

// Publish queues msgs for delivery. It never blocks and does nothing when
// no client is connected. msgs is copied; the caller may reuse it.
func (h *Hub) Publish(msgs []osc.Message) {
	if len(msgs) == 0 || h.ClientCount() == 0 {
		return
	}
	b := batch{ts: h.now().UTC(), msgs: append([]osc.Message(nil), msgs...)}
	select {
	case h.batches <- b:
	default:
		h.logger.Debug("monitor queue full, dropping bundle", "messages", len(msgs))
	}
}

// Run delivers published bundles until ctx is canceled, then drops every
// client and refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case b := <-h.batches:
			h.deliver(b)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) deliver(b batch) {
	frames := make(map[string][]byte)
	var slow []*client

	h.mu.Lock()
	for c := range h.clients {
		key := c.subscription()
		frame, seen := frames[key]
		if !seen {
			frame = h.encode(b, c)
			frames[key] = frame
		}
		if frame == nil {
			continue
		}
		select {
		case c.frames <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.remove(c, "slow_client")
	}
}

// encode returns the "bundle" frame of b as c sees it, or nil when none of
// its messages match c's prefixes.
func (h *Hub) encode(b batch, c *client) []byte {
	data := bundleData{Messages: make([]messageData, 0, len(b.msgs))}
	for _, m := range b.msgs {
		if !c.wants(m.Address) {
			continue
		}
		md := messageData{Address: m.Address, Args: make([]argData, len(m.Args))}
		for j, a := range m.Args {
			md.Args[j] = argValue(a)
		}
		data.Messages = append(data.Messages, md)
	}
	if len(data.Messages) == 0 {
		return nil
	}

	frame, err := json.Marshal(envelope{Type: "bundle", Ts: &b.ts, Data: data})
	if err != nil {
		h.logger.Warn("monitor marshal failed", "error", err)
		return nil
	}
	return frame
}

// add registers c. It reports false once the hub has stopped.
func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("monitor client connected", "remote_addr", c.remote, "prefixes", c.prefixes, "clients", n)
	return true
}

// remove drops c. Safe to call more than once and after Run has returned.
func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.drop()
	if ok {
		h.logger.Info("monitor client disconnected", "remote_addr", c.remote, "reason", reason, "clients", n)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.drop()
	}
}

// ============================================================================
// Client
// ============================================================================

const (
	writeWait    = 5 * time.Second
	pongWait     = 30 * time.Second
	pingPeriod   = 20 * time.Second
	maxReadBytes = 512
)

type client struct {
	conn     *websocket.Conn
	remote   string
	prefixes []string

	frames chan []byte
	gone   chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn, remote string, prefixes []string, sendBuf int) *client {
	return &client{
		conn:     conn,
		remote:   remote,
		prefixes: prefixes,
		frames:   make(chan []byte, sendBuf),
		gone:     make(chan struct{}),
	}
}

// wants reports whether addr matches one of the client's prefixes. No
// prefixes means every address.
func (c *client) wants(addr string) bool {
	if len(c.prefixes) == 0 {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(addr, p) {
			return true
		}
	}
	return false
}

func (c *client) subscription() string {
	return strings.Join(c.prefixes, "\x00")
}

// drop tells the writer to close the connection.
func (c *client) drop() {
	c.once.Do(func() { close(c.gone) })
}

// writeLoop owns every write to the connection and closes it on exit.
func (c *client) writeLoop(logger *slog.Logger) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case <-c.gone:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame := <-c.frames:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = c.conn.WriteMessage(websocket.TextMessage, frame)
		case <-ping.C:
			err = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
		if err != nil {
			logger.Debug("monitor write failed", "remote_addr", c.remote, "error", err)
			c.drop()
			return
		}
	}
}

// readLoop discards client frames so pongs and close frames are handled.
// It returns when the connection fails or is closed.
func (c *client) readLoop() error {
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}
