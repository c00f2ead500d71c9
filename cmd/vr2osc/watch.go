package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	neturl "net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"vr2osc/internal/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running bridge's monitor websocket",
	Long: `Connects to the /ws endpoint of a bridge started with http.listen and
prints the configured actions followed by every bundle it sends.
--prefix limits bundles to messages whose address starts with it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, _ := cmd.Flags().GetString("url")
		prefixes, _ := cmd.Flags().GetStringSlice("prefix")
		url, err := monitorURL(base, prefixes)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return watchMonitor(ctx, url, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().String("url", "ws://127.0.0.1:9101/ws", "Monitor websocket URL")
	watchCmd.Flags().StringSlice("prefix", nil, "OSC address prefix to follow (repeatable)")
	rootCmd.AddCommand(watchCmd)
}

// monitorURL adds one prefix query parameter per prefix to base.
func monitorURL(base string, prefixes []string) (string, error) {
	u, err := neturl.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid monitor url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid monitor url %q: scheme must be ws or wss", base)
	}
	if len(prefixes) > 0 {
		q := u.Query()
		for _, p := range prefixes {
			q.Add("prefix", p)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type monitorFrame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type monitorBundle struct {
	Messages []struct {
		Address string `json:"address"`
		Args    []struct {
			Value json.Number `json:"value"`
		} `json:"args"`
	} `json:"messages"`
}

// watchMonitor prints frames from url until ctx is canceled or the server
// closes the connection.
func watchMonitor(ctx context.Context, url string, w io.Writer) error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", url, err)
	}
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					done <- fmt.Errorf("websocket: %w", err)
					return
				}
				done <- nil
				return
			}
			printFrame(w, message)
		}
	}()

	select {
	case <-ctx.Done():
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return nil
	case err := <-done:
		return err
	}
}

func printFrame(w io.Writer, message []byte) {
	var f monitorFrame
	if err := json.Unmarshal(message, &f); err != nil {
		fmt.Fprintf(w, "[TEXT] %s\n", message)
		return
	}

	switch f.Type {
	case "actions":
		var infos []monitor.ActionInfo
		if err := json.Unmarshal(f.Data, &infos); err != nil {
			fmt.Fprintf(w, "[TEXT] %s\n", message)
			return
		}
		fmt.Fprintf(w, "[ACTIONS] %d\n", len(infos))
		for _, a := range infos {
			fmt.Fprintf(w, "  %s (%s)\n", a.Path, a.Kind)
		}
	case "bundle":
		var b monitorBundle
		if err := json.Unmarshal(f.Data, &b); err != nil {
			fmt.Fprintf(w, "[TEXT] %s\n", message)
			return
		}
		for _, m := range b.Messages {
			var sb strings.Builder
			sb.WriteString(m.Address)
			for _, a := range m.Args {
				sb.WriteByte(' ')
				sb.WriteString(a.Value.String())
			}
			fmt.Fprintln(w, sb.String())
		}
	default:
		fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(f.Type), f.Data)
	}
}
