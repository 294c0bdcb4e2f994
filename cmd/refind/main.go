package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"refind/internal/bootstrap"
	"refind/internal/config"
	"refind/internal/tui"
)

func main() {
	var (
		configPath string
		plain      bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.BoolVar(&plain, "plain", false, "Run the line-based REPL instead of the full-screen UI")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if plain {
		cfg.UI.Plain = true
	}

	result, err := bootstrap.Build(cfg, bootstrap.Options{
		LogToFile: !cfg.UI.Plain,
		Debug:     debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer result.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UI.Plain {
		err = runPlain(ctx, result)
	} else {
		err = tui.Run(ctx, tui.Deps{
			Client:                result.Client,
			Session:               result.Session,
			Claims:                result.Claims,
			Logger:                result.Logger,
			ChatInterval:          time.Duration(cfg.Sync.ChatIntervalMS) * time.Millisecond,
			NotificationsInterval: time.Duration(cfg.Sync.NotificationsIntervalMS) * time.Millisecond,
			DashboardInterval:     time.Duration(cfg.Sync.DashboardIntervalMS) * time.Millisecond,
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
