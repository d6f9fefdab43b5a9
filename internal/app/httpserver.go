package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/ctxutil"
	"github.com/Spok95/activejob-metrics/internal/eventtime"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/metrics"
	"github.com/Spok95/activejob-metrics/internal/wire"
)

// maxPayload bounds a single ingested event body.
const maxPayload = 1 << 20

// Publisher is satisfied by *notify.Bus.
type Publisher interface {
	Publish(ctx context.Context, ev jobmetrics.Event) error
}

// Deps are the collaborators of the HTTP server. Ping may be nil when no
// database is configured.
type Deps struct {
	Bus     Publisher
	Metrics http.Handler
	Ping    func(ctx context.Context) error
	Log     *zap.Logger
}

type HTTPServer struct {
	srv *http.Server
}

// NewMux builds the exporter routes.
func NewMux(d Deps) *http.ServeMux {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Handler()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
			defer cancel()
			t0 := time.Now()
			if err := d.Ping(ctx); err != nil {
				http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
			metrics.ObserveDBPing(time.Since(t0))
		}
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("GET /metrics", d.Metrics)

	mux.HandleFunc("POST /events/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		kind, err := jobmetrics.ParseEventName(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayload))
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		ev, err := wire.Decode(kind, body)
		if err != nil {
			metrics.EventErrors.WithLabelValues(kind.EventName(), metrics.StageDecode).Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := ctxutil.WithSource(r.Context(), "http")
		if err := d.Bus.Publish(ctx, ev); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, eventtime.ErrInvalidTimestamp) {
				status = http.StatusBadRequest
			}
			d.Log.Warn("ingested event not recorded", zap.String("event", kind.EventName()), zap.Error(err))
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

// StartHTTP serves the exporter on addr until ctx is done.
func StartHTTP(ctx context.Context, addr string, d Deps) *HTTPServer {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	srv := &http.Server{Addr: addr, Handler: NewMux(d), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.Log.Error("http server stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}
