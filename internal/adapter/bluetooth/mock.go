package bluetooth

import (
	"context"
	"fmt"
	"sync"
)

// MockController is an in-memory Controller test double.
type MockController struct {
	mu      sync.Mutex
	devices map[string]*Device

	ScanErr    error
	ConnectErr error

	ScanCalls       int
	ConnectCalls    int
	DisconnectCalls int
}

// NewMockController creates an empty mock controller.
func NewMockController() *MockController {
	return &MockController{devices: make(map[string]*Device)}
}

// AddDevice makes a device discoverable by the mock.
func (m *MockController) AddDevice(address, name string, rssi int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[address] = &Device{Address: address, Name: name, RSSI: rssi}
}

// RemoveDevice takes a device out of range.
func (m *MockController) RemoveDevice(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, address)
}

// IsConnected reports the mock's connection state for a device.
func (m *MockController) IsConnected(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[address]
	return ok && dev.Connected
}

func (m *MockController) Scan(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanCalls++
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	var out []Device
	for _, dev := range m.devices {
		out = append(out, *dev)
	}
	return out, nil
}

func (m *MockController) KnownDevices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, dev := range m.devices {
		out = append(out, *dev)
	}
	return out, nil
}

func (m *MockController) Connect(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	dev, ok := m.devices[address]
	if !ok {
		return fmt.Errorf("device %s not in range", address)
	}
	dev.Connected = true
	return nil
}

func (m *MockController) Disconnect(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisconnectCalls++
	dev, ok := m.devices[address]
	if !ok {
		return fmt.Errorf("device %s unknown", address)
	}
	dev.Connected = false
	return nil
}

var _ Controller = (*MockController)(nil)
