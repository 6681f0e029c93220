// Command kestrel starts a storage engine and serves it over TCP.
// Shutdown wiring follows darleet-GraphDB's app.Run: a signal-derived
// context cancels an errgroup that runs the server alongside a
// goroutine waiting on ctx.Done to trigger a graceful close.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-db/kestrel/engine"
	"github.com/kestrel-db/kestrel/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error(), "msg", "kestrel exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := engine.LoadConfig()
	if err != nil {
		return fmt.Errorf("kestrel: loading config: %w", err)
	}

	addr := os.Getenv("KESTREL_ADDR")
	if addr == "" {
		addr = ":9999"
	}

	storageEngine, isNewDatabase, err := engine.Open(cfg)
	if err != nil {
		return fmt.Errorf("kestrel: opening storage engine: %w", err)
	}
	slog.Info("kestrel starting", "addr", addr, "data_file", cfg.DataFile, "new_database", isNewDatabase)

	srv, err := server.NewServer(addr, storageEngine)
	if err != nil {
		storageEngine.Close()
		return fmt.Errorf("kestrel: starting listener: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(srv.Run)
	group.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		srv.Shutdown()
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
