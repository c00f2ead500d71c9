package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"vr2osc/internal/input"
)

// Config is the process configuration. Action sets live in their own
// documents under ActionSets; this file only says where to find them and
// where to send the result.
//
// Layering: DefaultConfig → file → VR2OSC_* environment → flags → Validate.
type Config struct {
	// Directory of action-set documents, relative to the config file.
	ActionSets string `yaml:"action_sets" env:"VR2OSC_ACTION_SETS"`

	// Ticks per second.
	PollRate int `yaml:"poll_rate" env:"VR2OSC_POLL_RATE"`

	DestinationHost string `yaml:"destination_host" env:"VR2OSC_DESTINATION_HOST"`
	DestinationPort int    `yaml:"destination_port" env:"VR2OSC_DESTINATION_PORT"`

	// Where the generated manifest is written. Empty means
	// "<config file>.manifest.json".
	ManifestPath string `yaml:"manifest_path,omitempty" env:"VR2OSC_MANIFEST_PATH"`

	IPC     IPCConfig     `yaml:"ipc"`
	Evdev   EvdevConfig   `yaml:"evdev"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`

	// Path of the file this config was loaded from, if any.
	Source string `yaml:"-"`
}

type IPCConfig struct {
	Enabled    bool   `yaml:"enabled" env:"VR2OSC_IPC_ENABLED"`
	SocketPath string `yaml:"socket_path" env:"VR2OSC_IPC_SOCKET"`
}

type EvdevConfig struct {
	Devices  []string        `yaml:"devices,omitempty" env:"VR2OSC_EVDEV_DEVICES" envSeparator:","`
	Bindings []input.Binding `yaml:"bindings,omitempty"`
}

type HTTPConfig struct {
	// Listen address for /metrics, /ws and /manifest.json. Empty disables.
	Listen string `yaml:"listen" env:"VR2OSC_HTTP_LISTEN"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"VR2OSC_LOG_LEVEL"`
	Format string `yaml:"format" env:"VR2OSC_LOG_FORMAT"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		ActionSets:      defaultActionSetsDir,
		PollRate:        defaultPollRate,
		DestinationHost: defaultDestinationHost,
		DestinationPort: defaultDestinationPort,
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultSocketPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads a YAML (or JSON) config on top of the defaults.
// Unknown fields are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	path = ExpandPath(path)
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	cfg.Source = path
	return cfg, nil
}

// ApplyEnv overrides cfg from VR2OSC_* variables. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FlagOverrides holds flag values that were explicitly set. Nil pointers are
// ignored; non-nil values are applied even when zero.
type FlagOverrides struct {
	ActionSets      *string
	PollRate        *int
	DestinationHost *string
	DestinationPort *int
	ManifestPath    *string

	IPCEnabled    *bool
	IPCSocketPath *string

	EvdevDevices []string

	HTTPListen *string

	LogLevel  *string
	LogFormat *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ActionSets != nil {
		cfg.ActionSets = *o.ActionSets
	}
	if o.PollRate != nil {
		cfg.PollRate = *o.PollRate
	}
	if o.DestinationHost != nil {
		cfg.DestinationHost = *o.DestinationHost
	}
	if o.DestinationPort != nil {
		cfg.DestinationPort = *o.DestinationPort
	}
	if o.ManifestPath != nil {
		cfg.ManifestPath = *o.ManifestPath
	}
	if o.IPCEnabled != nil {
		cfg.IPC.Enabled = *o.IPCEnabled
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.EvdevDevices != nil {
		cfg.Evdev.Devices = o.EvdevDevices
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	if c.ActionSets == "" {
		return errors.New("action_sets must not be empty")
	}
	if c.PollRate <= 0 || c.PollRate > maxPollRate {
		return fmt.Errorf("poll_rate must be between 1 and %d", maxPollRate)
	}
	if c.DestinationHost == "" {
		return errors.New("destination_host must not be empty")
	}
	if c.DestinationPort <= 0 || c.DestinationPort > 65535 {
		return errors.New("destination_port must be between 1 and 65535")
	}

	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return errors.New("ipc.enabled is true but ipc.socket_path is empty")
	}

	for i, dev := range c.Evdev.Devices {
		if dev == "" {
			return fmt.Errorf("evdev.devices[%d] is empty", i)
		}
	}
	if len(c.Evdev.Devices) > 0 && len(c.Evdev.Bindings) == 0 {
		return errors.New("evdev.devices is set but evdev.bindings is empty")
	}
	if len(c.Evdev.Bindings) > 0 && len(c.Evdev.Devices) == 0 {
		return errors.New("evdev.bindings is set but evdev.devices is empty")
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := parseLogFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}

	return nil
}

// Interval returns the tick period derived from PollRate.
func (c *Config) Interval() time.Duration {
	return time.Second / time.Duration(c.PollRate)
}

// ResolvePath expands "~" and makes p relative to the config file's
// directory.
func (c *Config) ResolvePath(p string) string {
	p = ExpandPath(p)
	if p == "" || filepath.IsAbs(p) || c.Source == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Source), p)
}

// ActionSetsDir returns the resolved action-set directory.
func (c *Config) ActionSetsDir() string {
	return c.ResolvePath(c.ActionSets)
}

// ManifestFile returns where the manifest should be written.
func (c *Config) ManifestFile() string {
	if c.ManifestPath != "" {
		return c.ResolvePath(c.ManifestPath)
	}
	if c.Source != "" {
		return c.Source + ".manifest.json"
	}
	return defaultManifestName
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		return filepath.Join(home, p[2:])
	}
	return p
}

// loadConfig runs the full layering for path. An empty path skips the file.
func loadConfig(path string, environ map[string]string, flags FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, environ); err != nil {
		return Config{}, err
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
