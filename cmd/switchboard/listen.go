package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/btouchard/switchboard/internal/client"
)

func cmdListen(args []string) {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	url := fs.String("url", "", "WebSocket endpoint (overrides client.url)")
	token := fs.String("token", "", "connection credential (overrides client.token)")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.Client.URL = *url
	}
	if *token != "" {
		cfg.Client.Token = *token
	}
	if cfg.Client.Token == "" {
		fmt.Fprintln(os.Stderr, "listen: a credential is required (-token, client.token or SWITCHBOARD_TOKEN)")
		os.Exit(2)
	}

	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)
	printNotification := func(n client.Notification) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(n); err != nil {
			slog.Warn("printing notification", "id", n.ID, "error", err)
		}
	}

	center := client.NewCenter()
	pipeline := client.NewPipeline(center,
		client.WithWindows(cfg.Client.BurstWindow, cfg.Client.QuietWindow, cfg.Client.CacheTTL),
		client.WithListener(printNotification))

	// Several handlers see every message; the pipeline keeps one notification each.
	handlers := make([]client.Handler, max(cfg.Client.Handlers, 1))
	for i := range handlers {
		handlers[i] = pipeline.Handler()
	}

	slog.Info("listening", "url", cfg.Client.URL, "handlers", len(handlers))

	conn := client.NewConn(cfg.Client.URL, cfg.Client.Token, handlers)
	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("listener stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("listener stopped", "notifications", center.Len(), "unread", center.Unread())
}
