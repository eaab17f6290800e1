package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckConfigFile_Missing(t *testing.T) {
	fn := checkConfigFile("/nonexistent/path/config.yaml", nil)
	result := fn(nil)
	// A missing config is fine; the daemon runs on defaults.
	if result.Status != StatusPass {
		t.Errorf("status = %s, want PASS", result.Status)
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("invalid: {{yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, fmt.Errorf("parse config: bad yaml"))
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("status = %s, want FAIL", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected a fix suggestion")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("logger:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, nil)
	result := fn(nil)
	if result.Status != StatusPass {
		t.Errorf("status = %s: %s", result.Status, result.Message)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8537", true},
		{"localhost:8537", true},
		{"[::1]:8537", true},
		{"0.0.0.0:8537", false},
		{"192.168.1.10:8537", false},
		{"no-port", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestGatewayPort(t *testing.T) {
	port, err := gatewayPort("127.0.0.1:8537")
	if err != nil {
		t.Fatalf("gatewayPort: %v", err)
	}
	if port != 8537 {
		t.Errorf("port = %d", port)
	}

	if _, err := gatewayPort("bad"); err == nil {
		t.Error("expected error for address without port")
	}
}
