package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeusync/joynr/internal/config"
	"github.com/zeusync/joynr/internal/runtime"
	"github.com/zeusync/joynr/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "joynr:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	defer func() {
		if err := rt.Shutdown(); err != nil {
			fmt.Fprintln(os.Stderr, "Error stopping runtime:", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.ListenAddr != "" {
		srv, err := server.NewServer(server.Config{
			ListenAddr:      cfg.Server.ListenAddr,
			Path:            cfg.Server.Path,
			MetricsPath:     config.MetricsPath,
			MaxMessageBytes: cfg.Server.MaxMessageBytes,
		}, rt.Inbound(), rt.Registry, rt.Logger())
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				fmt.Fprintln(os.Stderr, "Error stopping server:", err)
			}
		}()
	}

	<-ctx.Done()
	return nil
}
