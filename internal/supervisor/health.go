package supervisor

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are the ambient operability counters exposed at /metrics;
// they describe process health, not knowledge-base contents, so they
// don't run afoul of the "no fan-out to external observers" non-goal.
var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "disco_engine_ticks_total",
		Help: "Number of reactive engine evaluation passes.",
	})
	handlerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "disco_handler_failures_total",
		Help: "Number of handler invocations that exited non-zero or timed out.",
	})
)

// healthServer serves /healthz (ready once the engine has completed)
// and /metrics, logged through gorilla/handlers' access-log middleware.
type healthServer struct {
	ready atomic.Bool
	srv   *http.Server
	log   hclog.Logger
}

func newHealthServer(addr string, log hclog.Logger) *healthServer {
	h := &healthServer{log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	h.srv = &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(log.StandardWriter(&hclog.StandardLoggerOptions{}), mux),
	}
	return h
}

func (h *healthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (h *healthServer) setReady(v bool) { h.ready.Store(v) }

func (h *healthServer) start() {
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Warn("health server stopped", "error", err)
		}
	}()
}

func (h *healthServer) stop(ctx context.Context) {
	_ = h.srv.Shutdown(ctx)
}
