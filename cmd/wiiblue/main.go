package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"wiiblue/cmd/wiiblue/daemon"
	"wiiblue/internal/adapter/bluetooth"
	"wiiblue/internal/adapter/gateway"
	"wiiblue/internal/adapter/inputwatch"
	"wiiblue/internal/adapter/registry"
	"wiiblue/internal/infra/config"
	"wiiblue/internal/infra/logger"
	"wiiblue/internal/infra/tracer"
	"wiiblue/internal/usecase/discovery"
	"wiiblue/internal/usecase/eventbus"
	"wiiblue/internal/usecase/manager"
	"wiiblue/internal/usecase/scheduling"
)

const version = "0.3.0"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "daemon":
		if err := runDaemonCmd(); err != nil {
			fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	case "devices":
		if err := runDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "devices: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'wiiblue --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`wiiblue - Wii Remote connection daemon

USAGE:
    wiiblue [COMMAND] [FLAGS]

COMMANDS:
    daemon      Manage wiiblue as a system service
                Subcommands: install, uninstall, status
    devices     List remotes the daemon has seen
    doctor      Run health checks on your setup

    (no command) - Run the daemon in the foreground

FLAGS:
    -h, --help               Show this help message
    --config PATH            Config file path (default: ./config.yaml)
    --bluetoothctl-path PATH Path to the bluetoothctl binary
    --xwiishow-path PATH     Path to the xwiishow binary
    --debug                  Force debug logging

CONFIGURATION:
    Config file: ./config.yaml (optional; defaults work out of the box)
    Environment: WIIBLUE_* variables override config

EXAMPLES:
    wiiblue                          # Run with defaults
    wiiblue --config /etc/wiiblue/config.yaml
    wiiblue daemon install           # Install as system service
    wiiblue devices                  # Show the remote registry
    wiiblue doctor                   # Check bluetoothctl, xwiishow, adapter`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("WIIBLUE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func hasFlag(name string) bool {
	for _, arg := range os.Args {
		if arg == name {
			return true
		}
	}
	return false
}

func flagValue(name string) string {
	for i, arg := range os.Args {
		if arg == name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
	}
	return ""
}

// loadConfig loads the config file, or falls back to defaults when no file
// exists. The daemon historically ran with no configuration at all.
func loadConfig() (*config.Config, error) {
	cfgPath := configPath()

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg = config.Defaults()
		config.ApplyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
	}

	if v := flagValue("--bluetoothctl-path"); v != "" {
		cfg.Bluetooth.BluetoothctlPath = v
	}
	if v := flagValue("--xwiishow-path"); v != "" {
		cfg.Input.XwiishowPath = v
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if hasFlag("--debug") {
		cfg.Logger.Level = "debug"
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	bus := eventbus.New(log)
	defer bus.Close()

	var store *registry.Store
	if cfg.Registry.Enabled {
		store, err = registry.Open(cfg.Registry.Path)
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		defer store.Close()
	}

	ctl, err := buildController(cfg, log)
	if err != nil {
		return fmt.Errorf("bluetooth: %w", err)
	}

	resolver := inputwatch.NewXwiishowResolver(cfg.Input.XwiishowPath, log)
	watcher := inputwatch.NewEvdevWatcher(cfg.Input.DevInputDir, log)

	var reg manager.Registry
	if store != nil {
		reg = store
	}
	mgr := manager.New(ctl, resolver, watcher, reg, bus, manager.Config{
		MaxRetries:     cfg.Bluetooth.MaxRetries,
		RetryBackoff:   cfg.Bluetooth.RetryBackoff,
		IdleTimeout:    cfg.Idle.Timeout,
		Cooldown:       cfg.Idle.Cooldown,
		ScansPerMinute: cfg.Bluetooth.ScansPerMinute,
	}, log)

	sch, err := buildScheduler(cfg, mgr, store, log)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sch.Start(ctx)
	defer sch.Stop()

	if cfg.Gateway.Enabled {
		srv, err := buildGateway(cfg, mgr, store, bus, log)
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error("gateway server error", "error", err)
			}
		}()

		if cfg.Discovery.Enabled {
			port, err := gatewayPort(cfg.Gateway.Addr)
			if err != nil {
				return fmt.Errorf("discovery: %w", err)
			}
			adv := discovery.NewAdvertiser(log)
			go func() {
				if err := adv.Advertise(ctx, cfg.Discovery.Name, port, map[string]string{"version": version}); err != nil {
					log.Error("mdns advertise error", "error", err)
				}
			}()
		}
	}

	log.Info("wiiblue starting",
		"version", version,
		"backend", cfg.Bluetooth.Backend,
		"idle_timeout", cfg.Idle.Timeout,
		"registry", cfg.Registry.Enabled,
		"gateway", cfg.Gateway.Enabled,
	)

	return mgr.Run(ctx)
}

func buildController(cfg *config.Config, log *slog.Logger) (bluetooth.Controller, error) {
	switch cfg.Bluetooth.Backend {
	case "bluez":
		return bluetooth.NewBluezBackend(cfg.Bluetooth.Adapter, cfg.Bluetooth.NamePrefix, cfg.Bluetooth.ScanTimeout, log)
	case "", "bluetoothctl":
		return bluetooth.NewCtlBackend(cfg.Bluetooth.BluetoothctlPath, cfg.Bluetooth.NamePrefix, cfg.Bluetooth.ScanTimeout, log), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Bluetooth.Backend)
	}
}

func buildScheduler(cfg *config.Config, mgr *manager.Manager, store *registry.Store, log *slog.Logger) (*scheduling.Scheduler, error) {
	sch := scheduling.New(log)

	if cfg.Idle.Enabled {
		sch.RegisterAction(scheduling.ActionIdleCheck, mgr.IdleCheck)
		schedule := cfg.Scheduler.IdleCheck
		if schedule == "" {
			schedule = cfg.Idle.CheckInterval.String()
		}
		if err := sch.AddTask(scheduling.Task{
			Name:     "idle-check",
			Schedule: schedule,
			Action:   scheduling.ActionIdleCheck,
		}); err != nil {
			return nil, err
		}
	}

	if store != nil && cfg.Registry.SessionRetention > 0 {
		retention := cfg.Registry.SessionRetention
		sch.RegisterAction(scheduling.ActionRegistryPrune, func(ctx context.Context) error {
			n, err := store.PruneSessions(ctx, retention)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Debug("pruned session journal", "rows", n)
			}
			return nil
		})
		if err := sch.AddTask(scheduling.Task{
			Name:     "registry-prune",
			Schedule: cfg.Scheduler.RegistryPrune,
			Action:   scheduling.ActionRegistryPrune,
		}); err != nil {
			return nil, err
		}
	}

	return sch, nil
}

func buildGateway(cfg *config.Config, mgr *manager.Manager, store *registry.Store, bus *eventbus.Bus, log *slog.Logger) (*gateway.Server, error) {
	var auth gateway.Authenticator
	if len(cfg.Gateway.Tokens) > 0 {
		entries := make([]gateway.TokenEntry, len(cfg.Gateway.Tokens))
		for i, t := range cfg.Gateway.Tokens {
			entries[i] = gateway.TokenEntry{Name: t.Name, Token: t.Token, Argon2Hash: t.Argon2Hash}
		}
		auth = gateway.NewStaticTokenAuth(entries)
	} else {
		if !isLoopbackAddr(cfg.Gateway.Addr) {
			return nil, fmt.Errorf("refusing to serve %s without auth tokens; add gateway.tokens or bind to loopback", cfg.Gateway.Addr)
		}
		auth = gateway.NoAuth{}
	}

	srv := gateway.NewServer(bus, auth, cfg.Gateway.Addr, log)

	var remoteStore gateway.RemoteStore
	if store != nil {
		remoteStore = store
	}
	gateway.RegisterAPI(srv, gateway.APIDeps{
		Manager:  mgr,
		Registry: remoteStore,
		Version:  version,
	})
	return srv, nil
}

func gatewayPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func runDaemonCmd() error {
	sub := "status"
	if len(os.Args) >= 3 {
		sub = os.Args[2]
	}

	switch sub {
	case "install":
		cfg := daemon.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := daemon.Install(cfg); err != nil {
			return err
		}
		fmt.Printf("Installed %s as a systemd service.\n", cfg.Name)
		fmt.Printf("Logs: %s/%s.log\n", cfg.LogPath, cfg.Name)
		return nil
	case "uninstall":
		if err := daemon.Uninstall("wiiblue"); err != nil {
			return err
		}
		fmt.Println("Uninstalled wiiblue service.")
		return nil
	case "status":
		st, err := daemon.Status("wiiblue")
		if err != nil {
			return err
		}
		if st.Running {
			fmt.Printf("wiiblue is running (pid %d)\n", st.PID)
		} else {
			fmt.Println("wiiblue is not running")
		}
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q (want install, uninstall, or status)", sub)
	}
}
