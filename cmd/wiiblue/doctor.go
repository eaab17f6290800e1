package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"wiiblue/internal/adapter/gateway"
	"wiiblue/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
// `doctor --hash-token <token>` instead prints an argon2id hash for
// the gateway token list.
func runDoctor() error {
	for i, arg := range os.Args {
		if arg == "--hash-token" {
			if i+1 >= len(os.Args) {
				return fmt.Errorf("--hash-token requires a token argument")
			}
			hash, err := gateway.HashToken(os.Args[i+1])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		}
	}

	cfgPath := configPath()

	// Config is optional for this daemon; most checks use defaults when the
	// file is absent.
	cfg, cfgErr := loadConfig()

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "bluetoothctl", Fn: checkBluetoothctl},
		{Name: "xwiishow", Fn: checkXwiishow},
		{Name: "Bluetooth adapter", Fn: checkAdapter},
		{Name: "Input devices", Fn: checkInputDevices},
		{Name: "Registry path", Fn: checkRegistryPath},
		{Name: "Gateway address", Fn: checkGatewayAddr},
	}

	fmt.Println("wiiblue doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  [%s] %s: %s\n", result.Status, result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before running wiiblue.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nwiiblue should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! wiiblue is ready to run.")
	}
	return nil
}

// checkConfigFile returns a check that verifies the config file, treating a
// missing file as fine since defaults cover everything.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("no config at %s, using defaults", cfgPath),
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check the YAML syntax and field values in " + cfgPath,
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkBluetoothctl(cfg *config.Config) CheckResult {
	path := "bluetoothctl"
	if cfg != nil {
		path = cfg.Bluetooth.BluetoothctlPath
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found", path),
			Fix:     "Install BlueZ (apt install bluez) or set bluetooth.bluetoothctl_path",
		}
	}
	return CheckResult{Status: StatusPass, Message: resolved}
}

func checkXwiishow(cfg *config.Config) CheckResult {
	path := "xwiishow"
	if cfg != nil {
		path = cfg.Input.XwiishowPath
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found", path),
			Fix:     "Install xwiimote tools (apt install xwiimote) or set input.xwiishow_path",
		}
	}
	return CheckResult{Status: StatusPass, Message: resolved}
}

func checkAdapter(_ *config.Config) CheckResult {
	entries, err := os.ReadDir("/sys/class/bluetooth")
	if err != nil || len(entries) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no Bluetooth adapter found under /sys/class/bluetooth",
			Fix:     "Plug in an adapter and check 'rfkill list'",
		}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return CheckResult{Status: StatusPass, Message: strings.Join(names, ", ")}
}

func checkInputDevices(cfg *config.Config) CheckResult {
	dir := "/dev/input"
	if cfg != nil {
		dir = cfg.Input.DevInputDir
	}
	if _, err := os.ReadDir(dir); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot read %s: %v", dir, err),
			Fix:     "Run as root or add the user to the 'input' group",
		}
	}
	return CheckResult{Status: StatusPass, Message: dir + " readable"}
}

func checkRegistryPath(cfg *config.Config) CheckResult {
	if cfg == nil || !cfg.Registry.Enabled {
		return CheckResult{Status: StatusPass, Message: "registry disabled"}
	}
	dir := filepath.Dir(cfg.Registry.Path)
	tmp, err := os.CreateTemp(dir, ".wiiblue-doctor-*")
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("registry dir %s not writable: %v", dir, err),
			Fix:     "Fix permissions or set registry.path",
		}
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return CheckResult{Status: StatusPass, Message: cfg.Registry.Path}
}

func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil || !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "gateway disabled"}
	}
	ln, err := net.DialTimeout("tcp", cfg.Gateway.Addr, time.Second)
	if err == nil {
		ln.Close()
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is already in use (is wiiblue running?)", cfg.Gateway.Addr),
		}
	}
	return CheckResult{Status: StatusPass, Message: cfg.Gateway.Addr + " free"}
}
