// Package redissource reads job events from Redis pub/sub. Each kind has
// its own channel, "<prefix><kind>.active_job", carrying the JSON payload.
package redissource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/ctxutil"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/metrics"
	"github.com/Spok95/activejob-metrics/internal/wire"
)

const sourceName = "redis"

// connectionTimeout bounds the initial ping.
const connectionTimeout = 5 * time.Second

var ErrEmptyAddress = errors.New("redis address is required")

// Publisher is satisfied by *notify.Bus.
type Publisher interface {
	Publish(ctx context.Context, ev jobmetrics.Event) error
}

// Config describes the Redis connection and the channel prefix shared by
// NewClient and New.
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

type Source struct {
	client *redis.Client
	prefix string
	pub    Publisher
	log    *zap.Logger
}

func New(client *redis.Client, cfg Config, pub Publisher, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{client: client, prefix: cfg.Prefix, pub: pub, log: log}
}

// Channels lists the channels the source subscribes to.
func (s *Source) Channels() []string {
	kinds := jobmetrics.Kinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, s.prefix+k.EventName())
	}
	return out
}

// Run subscribes and publishes incoming messages until ctx is done or the
// subscription breaks.
func (s *Source) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.Channels()...)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redissource subscribe: %w", err)
	}
	s.log.Info("listening for job events", zap.String("source", sourceName), zap.Strings("channels", s.Channels()))

	ctx = ctxutil.WithSource(ctx, sourceName)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redissource: subscription closed")
			}
			s.deliver(ctx, strings.TrimPrefix(msg.Channel, s.prefix), []byte(msg.Payload))
		}
	}
}

func (s *Source) deliver(ctx context.Context, channel string, payload []byte) {
	kind, err := jobmetrics.ParseEventName(channel)
	if err != nil {
		s.log.Warn("message on unknown channel", zap.String("channel", channel))
		return
	}
	ev, err := wire.Decode(kind, payload)
	if err != nil {
		metrics.EventErrors.WithLabelValues(channel, metrics.StageDecode).Inc()
		s.log.Warn("dropping undecodable event", zap.String("event", channel), zap.Error(err))
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("event not recorded", zap.String("event", channel), zap.Error(err))
	}
}
