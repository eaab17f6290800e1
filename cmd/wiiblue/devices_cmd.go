package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"wiiblue/internal/adapter/registry"
)

// runDevices lists every remote the registry has recorded, and the recent
// session journal when 'devices sessions <address>' is used.
func runDevices() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !cfg.Registry.Enabled {
		return fmt.Errorf("registry is disabled in config")
	}

	store, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	if len(os.Args) >= 4 && os.Args[2] == "sessions" {
		return printSessions(ctx, store, os.Args[3])
	}

	remotes, err := store.Remotes(ctx)
	if err != nil {
		return err
	}
	if len(remotes) == 0 {
		fmt.Println("No remotes recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tCONNECTS\tLAST SEEN")
	for _, r := range remotes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Address, r.Name, r.ConnectCount, r.LastSeen.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

func printSessions(ctx context.Context, store *registry.Store, address string) error {
	sessions, err := store.Sessions(ctx, address, 20)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Printf("No sessions recorded for %s.\n", address)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONNECTED\tDURATION\tREASON")
	for _, s := range sessions {
		duration := "open"
		if !s.DisconnectedAt.IsZero() {
			duration = s.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ConnectedAt.Local().Format(time.RFC3339), duration, s.Reason)
	}
	return w.Flush()
}
