// Package pgsource reads job events from PostgreSQL LISTEN/NOTIFY. The job
// framework publishes with pg_notify('<kind>.active_job', <json payload>).
package pgsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/ctxutil"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/metrics"
	"github.com/Spok95/activejob-metrics/internal/wire"
)

const sourceName = "postgres"

// Publisher is satisfied by *notify.Bus.
type Publisher interface {
	Publish(ctx context.Context, ev jobmetrics.Event) error
}

type Source struct {
	dsn string
	pub Publisher
	log *zap.Logger
}

func New(dsn string, pub Publisher, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{dsn: dsn, pub: pub, log: log}
}

// Run connects, listens on every event channel and publishes notifications
// until ctx is done or the connection fails.
func (s *Source) Run(ctx context.Context) error {
	cctx, cancel := ctxutil.WithDBTimeout(ctx)
	conn, err := pgx.Connect(cctx, s.dsn)
	cancel()
	if err != nil {
		return fmt.Errorf("pgsource connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	for _, k := range jobmetrics.Kinds() {
		lctx, cancel := ctxutil.WithDBTimeout(ctx)
		_, err := conn.Exec(lctx, "LISTEN "+pgx.Identifier{k.EventName()}.Sanitize())
		cancel()
		if err != nil {
			return fmt.Errorf("pgsource listen %s: %w", k.EventName(), err)
		}
	}
	s.log.Info("listening for job events", zap.String("source", sourceName))

	ctx = ctxutil.WithSource(ctx, sourceName)
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pgsource wait: %w", err)
		}
		s.deliver(ctx, n.Channel, []byte(n.Payload))
	}
}

func (s *Source) deliver(ctx context.Context, channel string, payload []byte) {
	kind, err := jobmetrics.ParseEventName(channel)
	if err != nil {
		s.log.Warn("notification on unknown channel", zap.String("channel", channel))
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

// Ping checks the database is reachable; used by /healthz.
func Ping(ctx context.Context, dsn string) error {
	cctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	conn, err := pgx.Connect(cctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(context.Background()) }()
	if err := conn.Ping(cctx); err != nil {
		return fmt.Errorf("pgsource ping: %w", err)
	}
	return nil
}
