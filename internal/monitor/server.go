package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"vr2osc/internal/actions"
	"vr2osc/internal/osc"
)

// Messages are JSON text frames wrapped in an envelope: {type, ts, data}.
// A client first receives "actions" listing the configured actions, then
// one "bundle" frame per sent bundle that has a message it subscribed to.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ActionInfo describes one configured action in the "actions" frame.
type ActionInfo struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type bundleData struct {
	Messages []messageData `json:"messages"`
}

type messageData struct {
	Address string    `json:"address"`
	Args    []argData `json:"args"`
}

// argData shows the wire tag and value; booleans appear as their 0/1 int.
type argData struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func argValue(v osc.Value) argData {
	tag := string(v.Kind().Tag())
	if v.Kind() == osc.KindFloat32 {
		return argData{Type: tag, Value: v.Float32()}
	}
	return argData{Type: tag, Value: v.Int32()}
}

// Server upgrades HTTP requests to monitor websockets. Clients may pass
// one or more ?prefix=/addr query parameters to receive only matching
// messages.
type Server struct {
	logger  *slog.Logger
	hub     *Hub
	initMsg []byte
}

// NewServer builds the server and its hub. Start the hub with
// s.Hub().Run(ctx).
func NewServer(logger *slog.Logger, groups []actions.Group, cfg HubConfig) (*Server, error) {
	var infos []ActionInfo
	for _, g := range groups {
		for _, a := range g.Actions {
			infos = append(infos, ActionInfo{
				Path: g.ActionPath(a),
				Name: a.Name,
				Kind: a.Kind().String(),
			})
		}
	}

	initMsg, err := json.Marshal(envelope{Type: "actions", Data: infos})
	if err != nil {
		return nil, err
	}

	return &Server{
		logger:  logger,
		hub:     NewHub(logger, cfg),
		initMsg: initMsg,
	}, nil
}

func (s *Server) Hub() *Hub { return s.hub }

// Publish hands a sent bundle to the hub.
func (s *Server) Publish(msgs []osc.Message) { s.hub.Publish(msgs) }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func parsePrefixes(r *http.Request) ([]string, error) {
	prefixes := r.URL.Query()["prefix"]
	for _, p := range prefixes {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("prefix %q must start with /", p)
		}
	}
	return prefixes, nil
}

// ServeHTTP upgrades the connection and serves the client until it
// disconnects or the hub stops.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefixes, err := parsePrefixes(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("monitor upgrade failed", "error", err)
		return
	}

	c := newClient(conn, r.RemoteAddr, prefixes, s.hub.sendBuf)
	// queued before registration so it precedes any bundle frame
	c.frames <- s.initMsg
	if !s.hub.add(c) {
		c.drop()
	}

	go c.writeLoop(s.logger)

	err = c.readLoop()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("monitor read failed", "remote_addr", c.remote, "error", err)
	}
	s.hub.remove(c, "closed")
}
