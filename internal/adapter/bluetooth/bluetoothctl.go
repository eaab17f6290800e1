package bluetooth

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"wiiblue/internal/domain"
)

// runFunc executes a bluetoothctl invocation and returns its combined output.
// Swappable in tests.
type runFunc func(ctx context.Context, path string, args ...string) ([]byte, error)

func execRun(ctx context.Context, path string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	// A timed `scan on` exits when the -t window closes; its output is still
	// the scan result, so surface it alongside the error.
	return out.Bytes(), err
}

// CtlBackend drives the BlueZ bluetoothctl CLI. It shells out for every
// operation, which keeps the daemon free of a D-Bus dependency and works on
// any host where `bluetoothctl` works.
type CtlBackend struct {
	path       string
	namePrefix string
	scanWindow time.Duration
	logger     *slog.Logger
	run        runFunc
}

// NewCtlBackend creates a bluetoothctl-backed controller.
func NewCtlBackend(path, namePrefix string, scanWindow time.Duration, logger *slog.Logger) *CtlBackend {
	return &CtlBackend{
		path:       path,
		namePrefix: namePrefix,
		scanWindow: scanWindow,
		logger:     logger,
		run:        execRun,
	}
}

// Scan runs `bluetoothctl -t <secs> scan on` and parses discovered devices
// matching the configured name prefix.
func (b *CtlBackend) Scan(ctx context.Context) ([]Device, error) {
	secs := int(b.scanWindow / time.Second)
	if secs < 1 {
		secs = 1
	}

	ctx, cancel := context.WithTimeout(ctx, b.scanWindow+5*time.Second)
	defer cancel()

	b.logger.Debug("starting bluetooth scan", "window_s", secs)
	out, err := b.run(ctx, b.path, "-t", strconv.Itoa(secs), "scan", "on")
	if len(out) == 0 && err != nil {
		return nil, domain.NewDomainError("CtlBackend.Scan", domain.ErrControllerDown, err.Error())
	}

	devices := parseScanOutput(string(out), b.namePrefix)
	b.logger.Debug("scan finished", "matches", len(devices))
	return devices, nil
}

// KnownDevices runs `bluetoothctl devices` and checks each matching device's
// connection status via `bluetoothctl info`.
func (b *CtlBackend) KnownDevices(ctx context.Context) ([]Device, error) {
	out, err := b.run(ctx, b.path, "devices")
	if err != nil {
		return nil, domain.NewDomainError("CtlBackend.KnownDevices", domain.ErrControllerDown, err.Error())
	}

	devices := parseDeviceList(string(out), b.namePrefix)
	for i := range devices {
		info, err := b.run(ctx, b.path, "info", devices[i].Address)
		if err != nil {
			continue
		}
		devices[i].Connected = parseInfoConnected(string(info))
	}
	return devices, nil
}

// Connect runs `bluetoothctl connect <address>`.
func (b *CtlBackend) Connect(ctx context.Context, address string) error {
	if address == "" {
		return domain.NewDomainError("CtlBackend.Connect", domain.ErrInvalidInput, "empty address")
	}
	out, err := b.run(ctx, b.path, "connect", address)
	if err != nil {
		return domain.NewDomainError("CtlBackend.Connect", err, strings.TrimSpace(string(out)))
	}
	if strings.Contains(string(out), "Failed to connect") {
		return domain.NewDomainError("CtlBackend.Connect", domain.ErrNotConnected, strings.TrimSpace(string(out)))
	}
	b.logger.Info("bluetooth connect issued", "address", address)
	return nil
}

// Disconnect runs `bluetoothctl disconnect <address>`.
func (b *CtlBackend) Disconnect(ctx context.Context, address string) error {
	if address == "" {
		return domain.NewDomainError("CtlBackend.Disconnect", domain.ErrInvalidInput, "empty address")
	}
	out, err := b.run(ctx, b.path, "disconnect", address)
	if err != nil {
		return domain.NewDomainError("CtlBackend.Disconnect", err, strings.TrimSpace(string(out)))
	}
	b.logger.Info("bluetooth disconnect issued", "address", address)
	return nil
}

// parseScanOutput extracts devices from streaming scan output. Matching lines
// look like:
//
//	[NEW] Device 00:1F:C5:12:34:56 Nintendo RVL-CNT-01
//	[CHG] Device 00:1F:C5:12:34:56 RSSI: -54
func parseScanOutput(out, namePrefix string) []Device {
	byAddr := make(map[string]*Device)
	var order []string

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		idx := indexOf(fields, "Device")
		if idx < 0 || idx+1 >= len(fields) {
			continue
		}
		addr := fields[idx+1]
		rest := strings.Join(fields[idx+2:], " ")

		if rssi, ok := strings.CutPrefix(rest, "RSSI: "); ok {
			if dev, seen := byAddr[addr]; seen {
				if n, err := strconv.Atoi(strings.TrimSpace(rssi)); err == nil {
					dev.RSSI = n
				}
			}
			continue
		}

		if !strings.Contains(rest, namePrefix) {
			continue
		}
		if _, seen := byAddr[addr]; !seen {
			byAddr[addr] = &Device{Address: addr, Name: rest}
			order = append(order, addr)
		}
	}

	devices := make([]Device, 0, len(order))
	for _, addr := range order {
		devices = append(devices, *byAddr[addr])
	}
	return devices
}

// parseDeviceList extracts devices from `bluetoothctl devices` output:
//
//	Device 00:1F:C5:12:34:56 Nintendo RVL-CNT-01
func parseDeviceList(out, namePrefix string) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "Device" {
			continue
		}
		name := strings.Join(fields[2:], " ")
		if !strings.Contains(name, namePrefix) {
			continue
		}
		devices = append(devices, Device{Address: fields[1], Name: name})
	}
	return devices
}

// parseInfoConnected reports whether `bluetoothctl info` output says the
// device is connected.
func parseInfoConnected(out string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "Connected: yes" {
			return true
		}
	}
	return false
}

func indexOf(fields []string, want string) int {
	for i, f := range fields {
		if f == want {
			return i
		}
	}
	return -1
}

var _ Controller = (*CtlBackend)(nil)

// String implements fmt.Stringer for log output.
func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Address, d.Name)
}
