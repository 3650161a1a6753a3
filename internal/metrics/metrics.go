package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Usage metrics
	TrackedSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kfocus_tracked_seconds_total",
			Help: "Total active-tab seconds persisted per domain",
		},
		[]string{"domain"},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kfocus_sessions_closed_total",
			Help: "Sessions closed, by outcome",
		},
		[]string{"outcome"}, // recorded, discarded, error
	)

	// Policy metrics
	BlockDirectives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kfocus_block_directives_total",
			Help: "Total block directives sent to tabs",
		},
		[]string{"domain"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kfocus_evaluation_duration_seconds",
			Help:    "Limit evaluation duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// Reset metrics
	ResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kfocus_resets_total",
			Help: "Daily resets, by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	// Bridge metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kfocus_events_total",
			Help: "Inbound browser events processed",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kfocus_events_dropped_total",
			Help: "Inbound browser events dropped",
		},
		[]string{"reason"},
	)

	BridgeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kfocus_bridge_connections",
			Help: "Number of connected browser shims",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		TrackedSeconds,
		SessionsClosed,
		BlockDirectives,
		EvaluationDuration,
		ResetsTotal,
		EventsTotal,
		EventsDropped,
		BridgeConnections,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the server's routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
