// Package daemon installs wiiblue as a systemd service. The daemon drives
// BlueZ and evdev, so Linux is the only supported platform.
package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"
)

// ServiceConfig holds parameters for service installation.
type ServiceConfig struct {
	Name       string
	BinaryPath string
	ConfigPath string
	WorkDir    string
	User       string
	LogPath    string
}

// ServiceStatus holds the status of an installed service.
type ServiceStatus struct {
	Running bool
	PID     int
}

// DefaultConfig returns a ServiceConfig with auto-detected defaults.
func DefaultConfig() ServiceConfig {
	name := "wiiblue"
	binary, _ := os.Executable()
	if binary == "" {
		binary = "/usr/local/bin/wiiblue"
	}

	// bluetoothctl and /dev/input access usually need root.
	username := "root"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return ServiceConfig{
		Name:       name,
		BinaryPath: binary,
		ConfigPath: filepath.Join("/etc", name, "config.yaml"),
		WorkDir:    filepath.Join("/var/lib", name),
		User:       username,
		LogPath:    filepath.Join("/var/log", name),
	}
}

// Validate checks the ServiceConfig for correctness.
func (c *ServiceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.BinaryPath == "" {
		return fmt.Errorf("binary path is required")
	}
	info, err := os.Stat(c.BinaryPath)
	if err != nil {
		return fmt.Errorf("binary %q: %w", c.BinaryPath, err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary %q is not executable", c.BinaryPath)
	}
	return nil
}

// Install installs the service.
func Install(cfg ServiceConfig) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("unsupported platform: %s (wiiblue requires BlueZ)", runtime.GOOS)
	}
	return installSystemd(cfg)
}

// Uninstall removes the service.
func Uninstall(name string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return uninstallSystemd(name)
}

// Status returns the service status.
func Status(name string) (*ServiceStatus, error) {
	if runtime.GOOS != "linux" {
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return statusSystemd(name)
}

const systemdTemplate = `[Unit]
Description={{.Name}} Wii Remote connection daemon
After=bluetooth.target
Requires=bluetooth.service

[Service]
Type=simple
ExecStart={{.BinaryPath}} --config {{.ConfigPath}}
WorkingDirectory={{.WorkDir}}
User={{.User}}
Restart=on-failure
RestartSec=5
StandardOutput=append:{{.LogPath}}/{{.Name}}.log
StandardError=append:{{.LogPath}}/{{.Name}}.log

[Install]
WantedBy=multi-user.target
`

// RenderSystemdUnit renders the systemd service file content.
func RenderSystemdUnit(cfg ServiceConfig) (string, error) {
	tmpl, err := template.New("systemd").Parse(systemdTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func installSystemd(cfg ServiceConfig) error {
	content, err := RenderSystemdUnit(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogPath, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	unitPath := filepath.Join("/etc/systemd/system", cfg.Name+".service")
	if err := os.WriteFile(unitPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", cfg.Name},
		{"systemctl", "start", cfg.Name},
	}
	for _, args := range cmds {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %s: %w", strings.Join(args, " "), out, err)
		}
	}

	return nil
}

func uninstallSystemd(name string) error {
	cmds := [][]string{
		{"systemctl", "stop", name},
		{"systemctl", "disable", name},
	}
	for _, args := range cmds {
		exec.Command(args[0], args[1:]...).Run() // best effort
	}

	unitPath := filepath.Join("/etc/systemd/system", name+".service")
	os.Remove(unitPath)
	exec.Command("systemctl", "daemon-reload").Run()
	return nil
}

func statusSystemd(name string) (*ServiceStatus, error) {
	out, err := exec.Command("systemctl", "is-active", name).Output()
	running := strings.TrimSpace(string(out)) == "active"
	if err != nil && !running {
		return &ServiceStatus{Running: false}, nil
	}

	status := &ServiceStatus{Running: running}

	if pidOut, err := exec.Command("systemctl", "show", "--property=MainPID", name).Output(); err == nil {
		parts := strings.SplitN(strings.TrimSpace(string(pidOut)), "=", 2)
		if len(parts) == 2 {
			status.PID, _ = strconv.Atoi(parts[1])
		}
	}

	return status, nil
}
