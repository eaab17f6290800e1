package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wiiblue/internal/domain"
)

// Config is the top-level daemon configuration.
type Config struct {
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Input     InputConfig     `yaml:"input"`
	Idle      IdleConfig      `yaml:"idle"`
	Registry  RegistryConfig  `yaml:"registry"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// BluetoothConfig controls how the daemon talks to the Bluetooth stack.
type BluetoothConfig struct {
	// Backend selects the controller implementation: "bluetoothctl" (default)
	// drives the BlueZ CLI; "bluez" uses the native stack when the binary is
	// built with the bluez tag.
	Backend string `yaml:"backend"`
	// BluetoothctlPath is the path to the bluetoothctl executable.
	BluetoothctlPath string `yaml:"bluetoothctl_path"`
	// Adapter selects a specific controller (e.g. "hci1"); empty = default.
	Adapter string `yaml:"adapter"`
	// NamePrefix filters scan results; devices whose name does not contain
	// this string are ignored. Default "RVL".
	NamePrefix string `yaml:"name_prefix"`
	// ScanTimeout bounds a single discovery pass.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	// MaxRetries bounds consecutive failed connect attempts before the
	// manager gives up.
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoff is the pause between failed connect attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// ScansPerMinute rate-limits discovery passes so a missing remote does
	// not keep the radio saturated.
	ScansPerMinute float64 `yaml:"scans_per_minute"`
}

// InputConfig controls device resolution and event watching.
type InputConfig struct {
	// XwiishowPath is the path to the xwiishow executable used to resolve
	// the remote's sysfs device path.
	XwiishowPath string `yaml:"xwiishow_path"`
	// DevInputDir is where evdev nodes live. Overridable for tests.
	DevInputDir string `yaml:"dev_input_dir"`
}

// IdleConfig controls automatic disconnection of idle remotes.
type IdleConfig struct {
	Enabled bool `yaml:"enabled"`
	// Timeout is how long a remote may sit without input before it is
	// disconnected to save batteries.
	Timeout time.Duration `yaml:"timeout"`
	// CheckInterval is how often the idle check runs.
	CheckInterval time.Duration `yaml:"check_interval"`
	// Cooldown is the grace period after an idle disconnect before the
	// manager starts scanning again.
	Cooldown time.Duration `yaml:"cooldown"`
}

// RegistryConfig controls the SQLite remote registry.
type RegistryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// SessionRetention prunes session journal rows older than this.
	SessionRetention time.Duration `yaml:"session_retention"`
}

// GatewayTokenConfig is one gateway auth token entry. Either Token (plain) or
// Argon2Hash (salt-prefixed, produced by `wiiblue doctor --hash-token`) is set.
type GatewayTokenConfig struct {
	Name       string `yaml:"name"`
	Token      string `yaml:"token,omitempty"`
	Argon2Hash string `yaml:"argon2_hash,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket status gateway.
type GatewayConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Addr    string               `yaml:"addr"`
	Tokens  []GatewayTokenConfig `yaml:"tokens,omitempty"`
}

// DiscoveryConfig controls mDNS advertisement of the gateway.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// SchedulerConfig holds cron schedules for periodic work.
type SchedulerConfig struct {
	// IdleCheck overrides the idle check schedule; empty uses
	// Idle.CheckInterval as a duration schedule.
	IdleCheck string `yaml:"idle_check,omitempty"`
	// RegistryPrune is a cron expression or duration for journal pruning.
	RegistryPrune string `yaml:"registry_prune"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// Defaults returns a Config with sensible defaults matching the daemon's
// historical behavior (10 connect retries 1s apart, 5 minute idle window).
func Defaults() *Config {
	return &Config{
		Bluetooth: BluetoothConfig{
			Backend:          "bluetoothctl",
			BluetoothctlPath: "bluetoothctl",
			NamePrefix:       domain.RemoteNamePrefix,
			ScanTimeout:      30 * time.Second,
			MaxRetries:       10,
			RetryBackoff:     time.Second,
			ScansPerMinute:   2,
		},
		Input: InputConfig{
			XwiishowPath: "xwiishow",
			DevInputDir:  "/dev/input",
		},
		Idle: IdleConfig{
			Enabled:       true,
			Timeout:       5 * time.Minute,
			CheckInterval: time.Second,
			Cooldown:      5 * time.Second,
		},
		Registry: RegistryConfig{
			Enabled:          true,
			Path:             "wiiblue.db",
			SessionRetention: 30 * 24 * time.Hour,
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8537",
		},
		Discovery: DiscoveryConfig{
			Enabled: false,
			Name:    "wiiblue",
		},
		Scheduler: SchedulerConfig{
			RegistryPrune: "@daily",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads and parses a YAML config file, applying defaults for missing
// fields and WIIBLUE_* environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides config fields from WIIBLUE_* environment
// variables. Only the knobs that make sense to flip per-host are exposed.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WIIBLUE_BLUETOOTHCTL_PATH"); v != "" {
		cfg.Bluetooth.BluetoothctlPath = v
	}
	if v := os.Getenv("WIIBLUE_XWIISHOW_PATH"); v != "" {
		cfg.Input.XwiishowPath = v
	}
	if v := os.Getenv("WIIBLUE_BT_ADAPTER"); v != "" {
		cfg.Bluetooth.Adapter = v
	}
	if v := os.Getenv("WIIBLUE_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Idle.Timeout = d
		}
	}
	if v := os.Getenv("WIIBLUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bluetooth.MaxRetries = n
		}
	}
	if v := os.Getenv("WIIBLUE_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WIIBLUE_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WIIBLUE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
		cfg.Gateway.Enabled = true
	}
	if v := os.Getenv("WIIBLUE_REGISTRY_PATH"); v != "" {
		cfg.Registry.Path = v
	}
	if v := os.Getenv("WIIBLUE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil && b {
			cfg.Logger.Level = "debug"
		}
	}
}
