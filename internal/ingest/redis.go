// Package ingest feeds publish requests from Redis pub/sub into the router.
package ingest

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/btouchard/switchboard/internal/router"
	"github.com/btouchard/switchboard/internal/wire"
)

// Publisher routes publish requests.
type Publisher interface {
	Publish(req *wire.PublishRequest) router.Report
}

// Subscriber routes every message published on one Redis channel.
type Subscriber struct {
	rdb       *redis.Client
	channel   string
	publisher Publisher
}

// NewClient parses url (redis:// or rediss://) and checks the server is reachable.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second

	if opts.TLSConfig == nil && strings.HasPrefix(url, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewSubscriber creates a subscriber on channel.
func NewSubscriber(rdb *redis.Client, channel string, publisher Publisher) *Subscriber {
	return &Subscriber{rdb: rdb, channel: channel, publisher: publisher}
}

// Run subscribes and routes messages until ctx is done. go-redis reconnects the
// subscription by itself; messages published while disconnected are lost.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.channel, err)
	}
	slog.Info("redis ingress subscribed", "channel", s.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *Subscriber) handle(payload string) {
	req, err := wire.DecodePublish([]byte(payload))
	if err != nil {
		slog.Warn("dropping invalid redis message", "channel", s.channel, "error", err)
		return
	}
	rep := s.publisher.Publish(req)
	slog.Debug("redis event routed", "event_id", rep.EventID, "type", req.Type, "recipients", rep.Recipients())
}
