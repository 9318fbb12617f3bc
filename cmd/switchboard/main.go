package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/switchboard/internal/auth"
	"github.com/btouchard/switchboard/internal/config"
	"github.com/btouchard/switchboard/internal/gateway"
	"github.com/btouchard/switchboard/internal/hub"
	"github.com/btouchard/switchboard/internal/ingest"
	sbmcp "github.com/btouchard/switchboard/internal/mcp"
	authmw "github.com/btouchard/switchboard/internal/mcp/middleware"
	"github.com/btouchard/switchboard/internal/notify"
	"github.com/btouchard/switchboard/internal/router"
	"github.com/btouchard/switchboard/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "version":
		fmt.Printf("switchboard %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "listen":
		cmdListen(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: switchboard <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the Switchboard server\n")
	fmt.Fprintf(os.Stderr, "  check     Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  token     Mint a connection credential for a principal\n")
	fmt.Fprintf(os.Stderr, "  listen    Subscribe to a server and print notifications\n")
	fmt.Fprintf(os.Stderr, "  version   Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting switchboard",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	id := fs.String("id", "", "principal id (required)")
	role := fs.String("role", "", "principal role")
	unit := fs.String("unit", "", "operational unit id")
	org := fs.String("org", "", "organization id")
	_ = fs.Parse(args) // ExitOnError handles errors

	if *id == "" {
		fmt.Fprintln(os.Stderr, "token: -id is required")
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	secret, err := resolveSecret(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading secret: %v\n", err)
		os.Exit(1)
	}

	verifier := auth.NewJWTVerifier(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	token, err := verifier.Issue(auth.Principal{ID: *id, Role: *role, Unit: *unit, Organization: *org})
	if err != nil {
		fmt.Fprintf(os.Stderr, "issuing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(config.ExpandHome(cfg.Server.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

// resolveSecret returns the configured signing key, or the one persisted under
// the secret directory, generating it on first use.
func resolveSecret(cfg *config.Config) (string, error) {
	if cfg.Auth.Secret != "" {
		return cfg.Auth.Secret, nil
	}
	return auth.LoadOrCreateSecret(config.ExpandHome(cfg.Auth.SecretDir))
}

func apiTokens(cfg *config.Config) *auth.APITokens {
	entries := make(map[string]string, len(cfg.Auth.APITokens))
	for _, e := range cfg.Auth.APITokens {
		entries[e.Name] = e.TokenHash
	}
	return auth.NewAPITokens(entries)
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- Credentials ---
	secret, err := resolveSecret(cfg)
	if err != nil {
		return fmt.Errorf("loading secret: %w", err)
	}
	verifier := auth.NewJWTVerifier(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	tokens := apiTokens(cfg)
	if tokens.Empty() {
		slog.Warn("no api tokens configured, publish and admin endpoints will reject every request")
	}

	// --- Connection Registry ---
	registry := hub.NewRegistry(cfg.Heartbeat.Interval)
	go registry.Run(ctx)

	// --- SQLite Store ---
	dbPath := config.ExpandHome(cfg.Database.Path)
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", dbPath)

	if cfg.Database.RetentionDays > 0 {
		go runRetention(ctx, db, time.Duration(cfg.Database.RetentionDays)*24*time.Hour)
	}

	// --- Router and observers ---
	// The MCP server needs the router and the router's notifier needs the MCP
	// server, so the notifier is attached once both exist.
	mcpNotifier := &lateNotifier{}
	rt := router.New(registry, router.StaticHierarchy(cfg.Hierarchy.Units),
		router.WithNotifier(notify.NewHub(notify.NewStoreNotifier(db), mcpNotifier)))

	// --- MCP Server ---
	mcpServer := sbmcp.NewServer(&sbmcp.Deps{
		Connections: registry,
		Router:      rt,
		Routes:      db,
		Version:     version,
	})
	mcpNotifier.set(notify.NewMCPNotifier(mcpServer, 3*time.Second))

	mcpHTTP := server.NewStreamableHTTPServer(mcpServer)

	// --- Redis ingress ---
	if cfg.Redis.Enabled {
		rdb, err := ingest.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		sub := ingest.NewSubscriber(rdb, cfg.Redis.Channel, rt)
		go func() {
			if err := sub.Run(ctx); err != nil {
				slog.Error("redis ingress stopped", "error", err)
			}
		}()
	}

	// --- HTTP Router ---
	r := chi.NewRouter()
	r.Use(authmw.SecurityHeaders)

	gw := gateway.New(registry, verifier, rt, gateway.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WriteTimeout:   cfg.Heartbeat.WriteTimeout,
	})
	gw.Mount(r, tokens)

	// MCP endpoint (API token required)
	r.Group(func(r chi.Router) {
		r.Use(authmw.BearerAuth(tokens))
		r.Handle("/mcp", mcpHTTP)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","connections":%d}`, registry.Len())
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("switchboard is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down", "connections", registry.Len())
	// Hijacked WebSocket connections are not tracked by Shutdown.
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func runRetention(ctx context.Context, s store.Store, keep time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := s.Cleanup(time.Now().Add(-keep))
		if err != nil {
			slog.Error("route retention failed", "error", err)
		} else if n > 0 {
			slog.Info("pruned route log", "deleted", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// lateNotifier forwards to a notifier attached after construction. Events
// routed before set are dropped.
type lateNotifier struct {
	n atomic.Pointer[notify.MCPNotifier]
}

func (l *lateNotifier) set(n *notify.MCPNotifier) { l.n.Store(n) }

func (l *lateNotifier) Notify(event notify.Event) {
	if n := l.n.Load(); n != nil {
		n.Notify(event)
	}
}
