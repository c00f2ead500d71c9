package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "vr2osc",
	Short: "Bridge VR controller actions to OSC over UDP",
	Long: `vr2osc samples controller actions at a fixed rate and sends the resulting
OSC messages as one bundle per tick to a UDP destination. Actions are
declared in action-set documents (JSON or YAML).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json")
}

// configFromFlags loads the config named by --config and applies every
// explicitly set flag on top.
func configFromFlags(cmd *cobra.Command) (Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return loadConfig(path, nil, overridesFromFlags(cmd.Flags()))
}

func overridesFromFlags(fs *pflag.FlagSet) FlagOverrides {
	var o FlagOverrides

	str := func(name string) *string {
		if !fs.Changed(name) {
			return nil
		}
		v, err := fs.GetString(name)
		if err != nil {
			return nil
		}
		return &v
	}
	integer := func(name string) *int {
		if !fs.Changed(name) {
			return nil
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return nil
		}
		return &v
	}

	o.ActionSets = str("action-sets")
	o.PollRate = integer("poll-rate")
	o.DestinationHost = str("host")
	o.DestinationPort = integer("port")
	o.ManifestPath = str("manifest-path")
	o.IPCSocketPath = str("ipc-socket")
	o.HTTPListen = str("http-listen")
	o.LogLevel = str("log-level")
	o.LogFormat = str("log-format")

	if fs.Changed("no-ipc") {
		if v, err := fs.GetBool("no-ipc"); err == nil {
			enabled := !v
			o.IPCEnabled = &enabled
		}
	}
	if fs.Changed("evdev-device") {
		if v, err := fs.GetStringSlice("evdev-device"); err == nil {
			o.EvdevDevices = v
		}
	}
	return o
}
