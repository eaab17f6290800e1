package inputwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"wiiblue/internal/domain"
)

const xwiishowFixture = `Listing connected Wii Remote devices:
  Found device #1: /sys/devices/virtual/misc/uhid/0005:057E:0306.0006
End of device list
`

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseXwiishowList(t *testing.T) {
	got := parseXwiishowList(xwiishowFixture)
	want := "/sys/devices/virtual/misc/uhid/0005:057E:0306.0006"
	if got != want {
		t.Errorf("parseXwiishowList = %q, want %q", got, want)
	}
}

func TestParseXwiishowListEmpty(t *testing.T) {
	out := "Listing connected Wii Remote devices:\nEnd of device list\n"
	if got := parseXwiishowList(out); got != "" {
		t.Errorf("parseXwiishowList = %q, want empty", got)
	}
}

func TestResolverMultipleDevicesPicksFirst(t *testing.T) {
	out := `Listing connected Wii Remote devices:
  Found device #1: /sys/devices/virtual/misc/uhid/0005:057E:0306.0006
  Found device #2: /sys/devices/virtual/misc/uhid/0005:057E:0306.0007
End of device list
`
	want := "/sys/devices/virtual/misc/uhid/0005:057E:0306.0006"
	if got := parseXwiishowList(out); got != want {
		t.Errorf("parseXwiishowList = %q, want %q", got, want)
	}
}

func TestResolverRunError(t *testing.T) {
	r := NewXwiishowResolver("xwiishow", newTestLogger())
	r.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("no such file or directory")
	}

	if _, err := r.Resolve(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolverNoDevice(t *testing.T) {
	r := NewXwiishowResolver("xwiishow", newTestLogger())
	r.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Listing connected Wii Remote devices:\nEnd of device list\n"), nil
	}

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, domain.ErrDevicePathUnknown) {
		t.Errorf("err = %v, want ErrDevicePathUnknown", err)
	}
}

func TestResolverSuccess(t *testing.T) {
	r := NewXwiishowResolver("xwiishow", newTestLogger())
	r.run = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if len(args) != 1 || args[0] != "list" {
			t.Fatalf("args = %v, want [list]", args)
		}
		return []byte(xwiishowFixture), nil
	}

	path, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/sys/devices/virtual/misc/uhid/0005:057E:0306.0006" {
		t.Errorf("path = %q", path)
	}
}
