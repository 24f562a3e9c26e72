// Package metrics exposes Prometheus instrumentation for fetches and matches.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Abhaythakor/fingerprintweb/util"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Fetches   *prometheus.CounterVec
	Matches   *prometheus.CounterVec
	Redirects *prometheus.CounterVec

	Inflight prometheus.Gauge

	FetchDuration prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fingerprintweb_fetches_total",
				Help: "Fetched URLs by outcome",
			},
			[]string{"outcome"},
		),
		Matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fingerprintweb_matches_total",
				Help: "Technology matches by origin signal",
			},
			[]string{"origin"},
		),
		Redirects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fingerprintweb_redirects_total",
				Help: "Redirect hops by decision",
			},
			[]string{"decision"},
		),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fingerprintweb_inflight_fetches",
			Help: "HTTP round trips currently in flight",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fingerprintweb_fetch_duration_seconds",
			Help:    "Duration of a single HTTP round trip",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	m.registry.MustRegister(m.Fetches, m.Matches, m.Redirects, m.Inflight, m.FetchDuration)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveMatch(origin string) {
	if m == nil {
		return
	}
	m.Matches.WithLabelValues(origin).Inc()
}

func (m *Metrics) ObserveRedirect(decision string) {
	if m == nil {
		return
	}
	m.Redirects.WithLabelValues(decision).Inc()
}

// TrackRoundTrip marks a round trip as in flight and returns a func that records its duration.
func (m *Metrics) TrackRoundTrip() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.Inflight.Inc()
	return func() {
		m.Inflight.Dec()
		m.FetchDuration.Observe(time.Since(start).Seconds())
	}
}

// Server serves /metrics and /healthz.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server for m listening on addr.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		util.Info("Metrics server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("Metrics server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
