package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "chatguard"

// Collector records moderation decisions.
type Collector struct {
	decisions *prometheus.CounterVec
	duration  prometheus.Histogram
	mutes     prometheus.Counter
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decisions_total",
			Help:      "Messages evaluated, by action and deny reason.",
		}, []string{"action", "reason"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating one message.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		mutes: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "auto_mutes_total",
			Help:      "Senders muted after too many strikes.",
		}),
	}
}

// ObserveDecision records one evaluation. An empty reason means the message
// was allowed.
func (c *Collector) ObserveDecision(reason string, elapsed time.Duration) {
	action := "deny"
	if reason == "" {
		action, reason = "allow", "none"
	}
	c.decisions.WithLabelValues(action, reason).Inc()
	c.duration.Observe(elapsed.Seconds())
}

func (c *Collector) IncAutoMutes() {
	c.mutes.Inc()
}

// Server exposes a registry over HTTP at /metrics.
type Server struct {
	addr    string
	handler http.Handler
}

func NewServer(addr string, g prometheus.Gatherer) *Server {
	return &Server{
		addr:    addr,
		handler: promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
	}
}

// Handler returns the mux serving /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.handler)
	return mux
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting metrics server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
