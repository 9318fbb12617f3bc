// Package gateway exposes the registry and the router over HTTP: the WebSocket
// endpoint clients subscribe on, and the admin and publish APIs.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/btouchard/switchboard/internal/auth"
	"github.com/btouchard/switchboard/internal/hub"
	"github.com/btouchard/switchboard/internal/mcp/middleware"
	"github.com/btouchard/switchboard/internal/router"
	"github.com/btouchard/switchboard/internal/wire"
)

const (
	maxMessageSize = 64 << 10
	maxPublishBody = 1 << 20
)

// Publisher routes publish requests.
type Publisher interface {
	Publish(req *wire.PublishRequest) router.Report
}

// Options tunes the gateway.
type Options struct {
	// AllowedOrigins lists accepted browser origins; "*" accepts any.
	// Requests without an Origin header are always accepted.
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

// Gateway serves the WebSocket endpoint and the JSON APIs.
type Gateway struct {
	registry  *hub.Registry
	verifier  auth.Verifier
	publisher Publisher
	upgrader  websocket.Upgrader
	opts      Options
}

// New creates a gateway.
func New(registry *hub.Registry, verifier auth.Verifier, publisher Publisher, opts Options) *Gateway {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	g := &Gateway{
		registry:  registry,
		verifier:  verifier,
		publisher: publisher,
		opts:      opts,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Mount registers the gateway routes. The API routes require one of tokens.
func (g *Gateway) Mount(r chi.Router, tokens *auth.APITokens) {
	r.Get("/ws", g.HandleWS)
	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(tokens))
		r.Post("/api/events", g.HandlePublish)
		r.Get("/api/connections", g.HandleConnections)
	})
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(g.opts.AllowedOrigins, "*") || slices.Contains(g.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// credential reads the handshake token from the Authorization header or the
// token query parameter, for browsers that cannot set headers on upgrade.
func credential(r *http.Request) string {
	if token, ok := middleware.BearerToken(r); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

// HandleWS authenticates, upgrades, registers and then serves the read loop
// until the socket closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := credential(r)
	if token == "" {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}

	principal, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		slog.Info("handshake rejected", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "principal_id", principal.ID, "error", err)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	// Holding the write lock across registration keeps routed events behind the greeting.
	t := newTransport(ws, g.opts.WriteTimeout)
	t.mu.Lock()
	conn := g.registry.Register(*principal, t)
	err = t.writeLocked(wire.NewGreeting(principal.ID, time.Now()))
	t.mu.Unlock()
	if err != nil {
		slog.Debug("greeting failed", "principal_id", principal.ID, "error", err)
		g.registry.Unregister(conn)
		return
	}

	ws.SetPongHandler(func(string) error {
		g.registry.Confirm(conn)
		return nil
	})

	g.readLoop(conn, ws, t)
}

// readLoop answers application pings and returns when the socket fails.
func (g *Gateway) readLoop(conn *hub.Conn, ws *websocket.Conn, t *wsTransport) {
	id := conn.Principal().ID
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("read loop panicked", "principal_id", id, "panic", rec)
		}
		g.registry.Unregister(conn)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("connection read failed", "principal_id", id, "error", err)
			}
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			slog.Debug("ignoring undecodable message", "principal_id", id, "error", err)
			continue
		}

		switch env.Type {
		case wire.TypePing:
			pong := wire.Envelope{Type: wire.TypePong, Data: map[string]any{}, Timestamp: time.Now().UTC()}
			if err := t.Send(pong); err != nil {
				return
			}
		default:
			slog.Debug("ignoring client message", "principal_id", id, "type", env.Type)
		}
	}
}

// publishResponse summarizes a routing report.
type publishResponse struct {
	EventID             string `json:"eventId"`
	Class               string `json:"class"`
	Action              string `json:"action"`
	Target              string `json:"target"`
	Direct              bool   `json:"direct"`
	Unit                int    `json:"unit"`
	Organization        int    `json:"organization"`
	DerivedOrganization string `json:"derivedOrganization,omitempty"`
	Role                int    `json:"role"`
	Recipients          int    `json:"recipients"`
}

func newPublishResponse(rep router.Report) publishResponse {
	return publishResponse{
		EventID:             rep.EventID,
		Class:               string(rep.Class),
		Action:              string(rep.Action),
		Target:              rep.Target.String(),
		Direct:              rep.Direct,
		Unit:                rep.Unit,
		Organization:        rep.Organization,
		DerivedOrganization: rep.DerivedOrganization,
		Role:                rep.Role,
		Recipients:          rep.Recipients(),
	}
}

// HandlePublish routes one event submitted by a producer.
func (g *Gateway) HandlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPublishBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req, err := wire.DecodePublish(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, wire.ErrUnknownType) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	rep := g.publisher.Publish(req)
	slog.Info("event published",
		"producer", middleware.TokenName(r.Context()),
		"event_id", rep.EventID,
		"type", req.Type,
		"recipients", rep.Recipients())

	writeJSON(w, http.StatusAccepted, newPublishResponse(rep))
}

// HandleConnections lists the registry.
func (g *Gateway) HandleConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       g.registry.Len(),
		"connections": g.registry.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
