// Package discovery advertises the daemon's gateway on the local network via
// mDNS/DNS-SD so dashboards can find it without configuration.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

const (
	serviceType = "_wiiblue._tcp"
	mdnsDomain  = "local."
)

// Advertiser registers the gateway as an mDNS service.
type Advertiser struct {
	logger *slog.Logger
}

// NewAdvertiser creates an Advertiser.
func NewAdvertiser(logger *slog.Logger) *Advertiser {
	return &Advertiser{logger: logger}
}

// Advertise registers the service and blocks until ctx is cancelled.
// Call it in a goroutine.
func (a *Advertiser) Advertise(ctx context.Context, name string, port int, metadata map[string]string) error {
	txt := make([]string, 0, len(metadata))
	for k, v := range metadata {
		txt = append(txt, k+"="+v)
	}

	server, err := zeroconf.Register(name, serviceType, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.logger.Info("mdns advertising", "name", name, "service", serviceType, "port", port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}
