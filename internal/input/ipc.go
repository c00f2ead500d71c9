package input

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// External tools report controller samples over a Unix domain socket.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"path": "/actions/main/in/trigger", "value": 0.7}
//     or:           {"path": "/actions/main/in/toggle", "state": true}
//     "active" is optional and defaults to true.
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// Update is one sample report. Exactly one of State or Value must be set.
type Update struct {
	Path   string   `json:"path"`
	Active *bool    `json:"active,omitempty"`
	State  *bool    `json:"state,omitempty"`
	Value  *float32 `json:"value,omitempty"`
}

// DigitalUpdate returns an active on/off report.
func DigitalUpdate(path string, state bool) Update {
	return Update{Path: path, State: &state}
}

// AnalogUpdate returns an active scalar report.
func AnalogUpdate(path string, value float32) Update {
	return Update{Path: path, Value: &value}
}

// Inactive returns u marked as inactive.
func (u Update) Inactive() Update {
	f := false
	u.Active = &f
	return u
}

// Validate checks the shape of u without consulting a store.
func (u Update) Validate() error {
	if u.Path == "" {
		return errors.New("path is required")
	}
	if (u.State == nil) == (u.Value == nil) {
		return errors.New("exactly one of state or value is required")
	}
	return nil
}

// Apply writes u into the store.
func (s *Store) Apply(u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	active := u.Active == nil || *u.Active
	if u.State != nil {
		return s.SetDigital(u.Path, active, *u.State)
	}
	return s.SetAnalog(u.Path, active, *u.Value)
}

// IPCResponse is sent back for every request line.
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ServeIPC listens on socketPath until ctx is canceled.
func ServeIPC(ctx context.Context, socketPath string, store *Store, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, store, logger)
	}
}

func handleIPCConnection(conn net.Conn, store *Store, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	reply := func(err error) {
		resp := IPCResponse{Status: "ok"}
		if err != nil {
			resp = IPCResponse{Status: "error", Error: err.Error()}
		}
		if encErr := encoder.Encode(resp); encErr != nil {
			logger.Error("IPC failed to send response", "error", encErr)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		var u Update
		if err := json.Unmarshal([]byte(line), &u); err != nil {
			reply(fmt.Errorf("parse update: %w", err))
			continue
		}
		reply(store.Apply(u))
	}

	logger.Debug("IPC connection closed")
}

// ============================================================================
// IPC Client
// ============================================================================

// SendSample sends one update over the socket and waits for the reply.
func SendSample(socketPath string, u Update) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send update: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
