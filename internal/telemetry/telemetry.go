// Package telemetry exposes the named counters, gauges, and histograms
// from spec.md's metrics surface over an HTTP /metrics endpoint. The
// teacher only ever consumes Prometheus as a query client
// (internal/metricdata/prometheus.go talks to an external Prometheus
// server); exposing our own metrics has no direct teacher file to
// imitate, so this package follows the ecosystem-standard
// promauto/promhttp idiom for the same library's complementary use.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atscope/modguard/pkg/mlog"
)

// BacklogSource is a named queue whose depth is polled periodically.
type BacklogSource interface {
	Backlog() int
}

// Metrics holds every named collector spec.md's metrics surface names.
type Metrics struct {
	registry *prometheus.Registry

	RedirectLimitExceeded prometheus.Counter
	QueueBacklog          *prometheus.GaugeVec
	WebLinkRedirects      prometheus.Histogram

	sources map[string]BacklogSource
}

// New constructs a fresh registry and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sources:  map[string]BacklogSource{},
	}

	m.RedirectLimitExceeded = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "redirect_limit_exceeded",
		Help: "External URL redirect chains that exceeded UrlRedirectLimit.",
	})
	m.QueueBacklog = promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_backlog",
		Help: "Current item count in a bounded processing queue.",
	}, []string{"queue"})
	m.WebLinkRedirects = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:    "web_links",
		Help:    "Redirect chain length observed while following an external link.",
		Buckets: prometheus.LinearBuckets(0, 1, 12),
	})

	return m
}

// Track registers a named queue for periodic backlog polling.
func (m *Metrics) Track(name string, source BacklogSource) {
	m.sources[name] = source
}

// Run polls every tracked queue's backlog into the gauge until ctx is
// cancelled.
func (m *Metrics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, source := range m.sources {
				m.QueueBacklog.WithLabelValues(name).Set(float64(source.Backlog()))
			}
		}
	}
}

// Serve starts the /metrics HTTP listener on addr (e.g. ":2112") and
// blocks until ctx is cancelled or the listener fails.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			mlog.Warnf("telemetry: shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
