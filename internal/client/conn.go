package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/btouchard/switchboard/internal/wire"
)

// Handler processes one inbound domain envelope.
type Handler func(ctx context.Context, env wire.Envelope)

// DefaultReadTimeout bounds the silence tolerated between two server pings.
const DefaultReadTimeout = 75 * time.Second

// Conn is a reconnecting subscription to a switchboard server. Every inbound
// domain envelope is handed to each handler on its own goroutine.
type Conn struct {
	url         string
	token       string
	dialer      *websocket.Dialer
	handlers    []Handler
	readTimeout time.Duration
	backoff     *backoff.Backoff
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.readTimeout = d }
}

// WithBackoff overrides the reconnect delays.
func WithBackoff(lo, hi time.Duration) ConnOption {
	return func(c *Conn) {
		c.backoff.Min = lo
		c.backoff.Max = hi
	}
}

// NewConn creates a subscription to url authenticated with token.
func NewConn(url, token string, handlers []Handler, opts ...ConnOption) *Conn {
	c := &Conn{
		url:         url,
		token:       token,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handlers:    handlers,
		readTimeout: DefaultReadTimeout,
		backoff: &backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    30 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and serves until ctx is done, reconnecting after every failure.
func (c *Conn) Run(ctx context.Context) error {
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.backoff.Duration()
		slog.Warn("connection lost, reconnecting", "url", c.url, "error", err, "retry_in", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) runOnce(ctx context.Context) error {
	ws, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	c.backoff.Reset()
	return c.Serve(ctx, ws)
}

// Dial opens one authenticated connection.
func (c *Conn) Dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dialing %s: credential rejected: %w", c.url, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", c.url, err)
	}
	return ws, nil
}

// Serve reads from ws until it fails or ctx is done, then closes it and waits
// for in-flight handlers.
func (c *Conn) Serve(ctx context.Context, ws *websocket.Conn) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			ws.Close()
		case <-done:
			ws.Close()
		}
	}()

	_ = ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		var env wire.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading: %w", err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.readTimeout))

		switch {
		case env.Type == wire.TypeConnection:
			slog.Info("connected", "url", c.url)
		case env.Type == wire.TypePong:
		case env.Type.IsDomain():
			c.dispatch(ctx, &wg, env)
		default:
			slog.Debug("ignoring message", "type", env.Type)
		}
	}
}

// dispatch fans env out to every handler concurrently.
func (c *Conn) dispatch(ctx context.Context, wg *sync.WaitGroup, env wire.Envelope) {
	for i, h := range c.handlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("handler panicked", "handler", i, "type", env.Type, "panic", r)
				}
			}()
			h(ctx, env)
		}()
	}
}

// Handler adapts the pipeline to a connection handler.
func (p *Pipeline) Handler() Handler {
	return func(_ context.Context, env wire.Envelope) {
		res, err := p.Ingest(FromEnvelope(env))
		if err != nil {
			slog.Warn("message not ingested", "type", env.Type, "result", res, "error", err)
		}
	}
}
