//go:build linux && bluez

package bluetooth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tinybt "tinygo.org/x/bluetooth"

	"wiiblue/internal/domain"
)

// BluezBackend talks to BlueZ over D-Bus directly instead of shelling out to
// bluetoothctl. Built only with the bluez tag; classic-only remotes that do
// not advertise over LE still need the bluetoothctl backend.
type BluezBackend struct {
	adapter    *tinybt.Adapter
	namePrefix string
	scanWindow time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	connected map[string]tinybt.Device
	enabled   bool
}

// NewBluezBackend creates a native BlueZ controller. adapterID selects a
// specific controller ("hci1"); empty uses the default adapter.
func NewBluezBackend(adapterID, namePrefix string, scanWindow time.Duration, logger *slog.Logger) (Controller, error) {
	return &BluezBackend{
		adapter:    resolveAdapter(adapterID),
		namePrefix: namePrefix,
		scanWindow: scanWindow,
		logger:     logger,
		connected:  make(map[string]tinybt.Device),
	}, nil
}

func resolveAdapter(adapterID string) *tinybt.Adapter {
	trimmed := strings.TrimSpace(adapterID)
	if trimmed == "" {
		return tinybt.DefaultAdapter
	}
	return tinybt.NewAdapter(trimmed)
}

func (b *BluezBackend) enable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled {
		return nil
	}
	if err := b.adapter.Enable(); err != nil {
		return domain.NewDomainError("BluezBackend.enable", domain.ErrControllerDown, err.Error())
	}
	b.enabled = true
	return nil
}

// Scan browses for advertising devices matching the name prefix for one scan
// window.
func (b *BluezBackend) Scan(ctx context.Context) ([]Device, error) {
	if err := b.enable(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	byAddr := make(map[string]Device)

	done := make(chan error, 1)
	go func() {
		done <- b.adapter.Scan(func(_ *tinybt.Adapter, result tinybt.ScanResult) {
			name := result.LocalName()
			if !strings.Contains(name, b.namePrefix) {
				return
			}
			mu.Lock()
			byAddr[result.Address.String()] = Device{
				Address: result.Address.String(),
				Name:    name,
				RSSI:    int(result.RSSI),
			}
			mu.Unlock()
		})
	}()

	select {
	case <-time.After(b.scanWindow):
	case <-ctx.Done():
	}
	if err := b.adapter.StopScan(); err != nil {
		b.logger.Warn("stop scan failed", "error", err)
	}
	if err := <-done; err != nil {
		return nil, domain.NewDomainError("BluezBackend.Scan", domain.ErrControllerDown, err.Error())
	}

	mu.Lock()
	defer mu.Unlock()
	devices := make([]Device, 0, len(byAddr))
	for _, dev := range byAddr {
		devices = append(devices, dev)
	}
	return devices, nil
}

// KnownDevices reports devices this backend has connected in this process.
func (b *BluezBackend) KnownDevices(_ context.Context) ([]Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	devices := make([]Device, 0, len(b.connected))
	for addr := range b.connected {
		devices = append(devices, Device{Address: addr, Connected: true})
	}
	return devices, nil
}

func (b *BluezBackend) Connect(ctx context.Context, address string) error {
	if err := b.enable(); err != nil {
		return err
	}
	mac, err := tinybt.ParseMAC(address)
	if err != nil {
		return domain.NewDomainError("BluezBackend.Connect", domain.ErrInvalidInput, fmt.Sprintf("bad address %q", address))
	}
	addr := tinybt.Address{MACAddress: tinybt.MACAddress{MAC: mac}}

	device, err := b.adapter.Connect(addr, tinybt.ConnectionParams{})
	if err != nil {
		return domain.NewDomainError("BluezBackend.Connect", err, address)
	}

	b.mu.Lock()
	b.connected[address] = device
	b.mu.Unlock()
	b.logger.Info("bluez connected", "address", address)
	return nil
}

func (b *BluezBackend) Disconnect(_ context.Context, address string) error {
	b.mu.Lock()
	device, ok := b.connected[address]
	delete(b.connected, address)
	b.mu.Unlock()

	if !ok {
		return domain.NewDomainError("BluezBackend.Disconnect", domain.ErrNotConnected, address)
	}
	if err := device.Disconnect(); err != nil {
		return domain.NewDomainError("BluezBackend.Disconnect", err, address)
	}
	b.logger.Info("bluez disconnected", "address", address)
	return nil
}

var _ Controller = (*BluezBackend)(nil)
