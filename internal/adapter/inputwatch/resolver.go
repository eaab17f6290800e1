package inputwatch

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"wiiblue/internal/domain"
)

// Resolver maps a connected remote to its sysfs device path.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// XwiishowResolver shells out to the xwiimote `xwiishow list` tool, whose
// output looks like:
//
//	Listing connected Wii Remote devices:
//	  Found device #1: /sys/devices/virtual/misc/uhid/0005:057E:0306.0006
//	End of device list
type XwiishowResolver struct {
	path   string
	logger *slog.Logger
	run    func(ctx context.Context, path string, args ...string) ([]byte, error)
}

// NewXwiishowResolver creates a resolver using the xwiishow binary at path.
func NewXwiishowResolver(path string, logger *slog.Logger) *XwiishowResolver {
	return &XwiishowResolver{
		path:   path,
		logger: logger,
		run: func(ctx context.Context, path string, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, path, args...)
			var out bytes.Buffer
			cmd.Stdout = &out
			err := cmd.Run()
			return out.Bytes(), err
		},
	}
}

// Resolve returns the sysfs path of the first connected remote.
func (r *XwiishowResolver) Resolve(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.path, "list")
	if err != nil {
		return "", domain.NewDomainError("XwiishowResolver.Resolve", err, "xwiishow list")
	}

	path := parseXwiishowList(string(out))
	if path == "" {
		return "", domain.NewDomainError("XwiishowResolver.Resolve", domain.ErrDevicePathUnknown, "no device in xwiishow output")
	}
	r.logger.Debug("resolved device path", "sys_path", path)
	return path, nil
}

// parseXwiishowList extracts the sysfs path from `xwiishow list` output.
// The path itself contains colons (HID bus identifiers), so only the first
// colon after the device marker separates label from path.
func parseXwiishowList(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Found device #") {
			continue
		}
		_, path, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		return strings.TrimSpace(path)
	}
	return ""
}

var _ Resolver = (*XwiishowResolver)(nil)
