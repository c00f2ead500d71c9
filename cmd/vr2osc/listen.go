package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print OSC packets received on a UDP port",
	Long: `A debugging receiver: decodes every OSC message and bundle arriving on
--addr and prints one line per message.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return listenOSC(ctx, addr, cmd.OutOrStdout())
	},
}

func init() {
	listenCmd.Flags().String("addr", fmt.Sprintf("127.0.0.1:%d", defaultDestinationPort), "UDP address to listen on")
	rootCmd.AddCommand(listenCmd)
}

// printDispatcher writes each message of a packet as "address arg arg...".
// go-osc dispatches every packet on its own goroutine.
type printDispatcher struct {
	mu *sync.Mutex
	w  io.Writer
}

func (d printDispatcher) Dispatch(packet osc.Packet) {
	var lines []string
	collectLines(packet, &lines)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(d.w, l)
	}
}

func collectLines(packet osc.Packet, lines *[]string) {
	switch p := packet.(type) {
	case *osc.Message:
		*lines = append(*lines, formatMessage(p))
	case *osc.Bundle:
		for _, m := range p.Messages {
			collectLines(m, lines)
		}
		for _, b := range p.Bundles {
			collectLines(b, lines)
		}
	}
}

func formatMessage(m *osc.Message) string {
	var sb strings.Builder
	sb.WriteString(m.Address)
	for _, a := range m.Arguments {
		fmt.Fprintf(&sb, " %v", a)
	}
	return sb.String()
}

// listenOSC serves until ctx is canceled.
func listenOSC(ctx context.Context, addr string, w io.Writer) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	fmt.Fprintf(w, "listening on %s\n", conn.LocalAddr())
	return serveOSC(ctx, conn, w)
}

func serveOSC(ctx context.Context, conn net.PacketConn, w io.Writer) error {
	server := &osc.Server{Dispatcher: printDispatcher{mu: &sync.Mutex{}, w: w}}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	err := server.Serve(conn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
