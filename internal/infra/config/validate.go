package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, so callers see all
// issues at once rather than fixing them one run at a time.
func (cfg *Config) Validate() error {
	ve := &ValidationError{}
	validateBluetooth(cfg, ve)
	validateInput(cfg, ve)
	validateIdle(cfg, ve)
	validateRegistry(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBluetooth(cfg *Config, ve *ValidationError) {
	switch cfg.Bluetooth.Backend {
	case "bluetoothctl", "bluez", "":
	default:
		ve.Add("bluetooth.backend must be one of: bluetoothctl, bluez (got %q)", cfg.Bluetooth.Backend)
	}
	if cfg.Bluetooth.BluetoothctlPath == "" {
		ve.Add("bluetooth.bluetoothctl_path must not be empty")
	}
	if cfg.Bluetooth.NamePrefix == "" {
		ve.Add("bluetooth.name_prefix must not be empty")
	}
	if cfg.Bluetooth.ScanTimeout <= 0 {
		ve.Add("bluetooth.scan_timeout must be > 0")
	}
	if cfg.Bluetooth.MaxRetries <= 0 {
		ve.Add("bluetooth.max_retries must be > 0")
	}
	if cfg.Bluetooth.RetryBackoff <= 0 {
		ve.Add("bluetooth.retry_backoff must be > 0")
	}
	if cfg.Bluetooth.ScansPerMinute <= 0 {
		ve.Add("bluetooth.scans_per_minute must be > 0")
	}
}

func validateInput(cfg *Config, ve *ValidationError) {
	if cfg.Input.XwiishowPath == "" {
		ve.Add("input.xwiishow_path must not be empty")
	}
	if cfg.Input.DevInputDir == "" {
		ve.Add("input.dev_input_dir must not be empty")
	}
}

func validateIdle(cfg *Config, ve *ValidationError) {
	if !cfg.Idle.Enabled {
		return
	}
	if cfg.Idle.Timeout <= 0 {
		ve.Add("idle.timeout must be > 0")
	}
	if cfg.Idle.CheckInterval <= 0 {
		ve.Add("idle.check_interval must be > 0")
	}
	if cfg.Idle.CheckInterval > cfg.Idle.Timeout {
		ve.Add("idle.check_interval (%s) must not exceed idle.timeout (%s)",
			cfg.Idle.CheckInterval, cfg.Idle.Timeout)
	}
	if cfg.Idle.Cooldown < 0 {
		ve.Add("idle.cooldown must be >= 0")
	}
}

func validateRegistry(cfg *Config, ve *ValidationError) {
	if !cfg.Registry.Enabled {
		return
	}
	if cfg.Registry.Path == "" {
		ve.Add("registry.path must not be empty when registry is enabled")
	}
	if cfg.Registry.SessionRetention <= 0 {
		ve.Add("registry.session_retention must be > 0")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not host:port: %v", cfg.Gateway.Addr, err)
	}
	for i, tok := range cfg.Gateway.Tokens {
		if tok.Token == "" && tok.Argon2Hash == "" {
			ve.Add("gateway.tokens[%d]: either token or argon2_hash must be set", i)
		}
		if tok.Token != "" && tok.Argon2Hash != "" {
			ve.Add("gateway.tokens[%d]: token and argon2_hash are mutually exclusive", i)
		}
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		ve.Add("logger.level %q is not one of: debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is not one of: text, json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not one of: stdout, noop", cfg.Tracer.Exporter)
	}
}
