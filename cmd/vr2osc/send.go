package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vr2osc/internal/input"
)

var sendCmd = &cobra.Command{
	Use:   "send <action-path> <value>",
	Short: "Report one controller sample to a running bridge",
	Long: `Sends a sample over the IPC socket. Binary and rotate actions take a word
(on, off, press, release, true, false); analog actions take a number.

  vr2osc send /actions/main/in/toggle press
  vr2osc send /actions/main/in/trigger 0.75`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inactive, _ := cmd.Flags().GetBool("inactive")
		u, err := parseUpdate(args[0], args[1], inactive)
		if err != nil {
			return err
		}
		if err := input.SendSample(socketFromFlags(cmd), u); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	sendCmd.Flags().String("ipc-socket", "", "Unix domain socket path (default from config)")
	sendCmd.Flags().Bool("inactive", false, "Report the action as inactive")
	rootCmd.AddCommand(sendCmd)
}

// socketFromFlags prefers --ipc-socket, then the config file, then the
// default. A missing config file is not an error for the client.
func socketFromFlags(cmd *cobra.Command) string {
	if s, _ := cmd.Flags().GetString("ipc-socket"); s != "" {
		return ExpandPath(s)
	}
	path, _ := cmd.Flags().GetString("config")
	if _, err := os.Stat(ExpandPath(path)); err == nil {
		if cfg, err := LoadConfigFile(path); err == nil && cfg.IPC.SocketPath != "" {
			return ExpandPath(cfg.IPC.SocketPath)
		}
	}
	if s := os.Getenv("VR2OSC_IPC_SOCKET"); s != "" {
		return s
	}
	return defaultSocketPath
}

// parseUpdate turns a command-line value into an IPC update. Words select a
// digital state; anything numeric is an analog value.
func parseUpdate(path, raw string, inactive bool) (input.Update, error) {
	var u input.Update
	switch strings.ToLower(raw) {
	case "true", "on", "press", "pressed", "down":
		u = input.DigitalUpdate(path, true)
	case "false", "off", "release", "released", "up":
		u = input.DigitalUpdate(path, false)
	default:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return input.Update{}, fmt.Errorf("invalid value %q: want on/off or a number", raw)
		}
		u = input.AnalogUpdate(path, float32(f))
	}
	if inactive {
		u = u.Inactive()
	}
	return u, u.Validate()
}
