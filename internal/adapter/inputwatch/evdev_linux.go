//go:build linux

package inputwatch

import (
	"context"
	"encoding/binary"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"wiiblue/internal/domain"
)

// inputEventSize is sizeof(struct input_event) on 64-bit Linux:
// two 8-byte timestamp words, type, code, value.
const inputEventSize = 24

// evTypeSyn is EV_SYN; sync markers bracket every report and carry no user
// action, so they do not count as activity.
const evTypeSyn = 0

// EvdevWatcher reads raw evdev records from the remote's event nodes. The
// kernel hid-wiimote driver exposes several input devices (buttons,
// accelerometer, IR) under one HID device; all of them count as activity.
type EvdevWatcher struct {
	devInputDir string
	logger      *slog.Logger
}

// NewEvdevWatcher creates a watcher reading event nodes from devInputDir
// (normally /dev/input).
func NewEvdevWatcher(devInputDir string, logger *slog.Logger) *EvdevWatcher {
	return &EvdevWatcher{devInputDir: devInputDir, logger: logger}
}

// Watch opens every event node belonging to sysPath and streams one timestamp
// per input event. The channel closes when ctx is cancelled or all nodes are
// gone (device disconnected).
func (w *EvdevWatcher) Watch(ctx context.Context, sysPath string) (<-chan time.Time, error) {
	nodes, err := eventNodes(sysPath, w.devInputDir)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, domain.NewDomainError("EvdevWatcher.Watch", domain.ErrDevicePathUnknown,
			"no event nodes under "+sysPath)
	}

	activity := make(chan time.Time, 64)
	var wg sync.WaitGroup

	fds := make([]int, 0, len(nodes))
	for _, node := range nodes {
		fd, err := unix.Open(node, unix.O_RDONLY, 0)
		if err != nil {
			w.logger.Warn("open event node failed", "node", node, "error", err)
			continue
		}
		fds = append(fds, fd)
		wg.Add(1)
		go w.readLoop(fd, node, activity, &wg)
	}
	if len(fds) == 0 {
		close(activity)
		return nil, domain.NewDomainError("EvdevWatcher.Watch", domain.ErrWatcherClosed,
			"could not open any event node")
	}

	go func() {
		<-ctx.Done()
		// Closing the descriptors unblocks the readers.
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()
	go func() {
		wg.Wait()
		close(activity)
	}()

	w.logger.Debug("watching input nodes", "count", len(fds), "sys_path", sysPath)
	return activity, nil
}

func (w *EvdevWatcher) readLoop(fd int, node string, activity chan<- time.Time, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, inputEventSize*16)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n < inputEventSize {
			return
		}
		now := time.Now()
		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			evType := binary.LittleEndian.Uint16(buf[off+16 : off+18])
			if evType == evTypeSyn {
				continue
			}
			select {
			case activity <- now:
			default:
				// Channel full; activity is already recorded for this instant.
			}
		}
	}
}

// eventNodes maps a sysfs HID device path to its /dev/input event nodes via
// the input subdirectories the kernel driver registers.
func eventNodes(sysPath, devInputDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(sysPath, "input", "input*", "event*"))
	if err != nil {
		return nil, domain.NewDomainError("eventNodes", err, sysPath)
	}
	nodes := make([]string, 0, len(matches))
	for _, m := range matches {
		nodes = append(nodes, filepath.Join(devInputDir, filepath.Base(m)))
	}
	return nodes, nil
}

var _ Watcher = (*EvdevWatcher)(nil)
