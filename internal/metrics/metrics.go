package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Uplink metrics
	PacketsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aprsgate_packets_sent_total",
			Help: "Position packets written to APRS-IS",
		},
	)

	TransmitErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aprsgate_transmit_errors_total",
			Help: "Failed APRS-IS transmissions",
		},
		[]string{"stage"},
	)

	UplinkConnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aprsgate_uplink_connects_total",
			Help: "Connections established to APRS-IS servers",
		},
	)

	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aprsgate_sessions_active",
			Help: "Live-tracking sessions currently held",
		},
	)

	LocationsThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aprsgate_locations_throttled_total",
			Help: "Location updates dropped by per-user rate limiting",
		},
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aprsgate_sessions_expired_total",
			Help: "Sessions removed by the expiry sweeper",
		},
	)

	// Gateway metrics
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aprsgate_gateway_requests_total",
			Help: "Gateway API requests",
		},
		[]string{"route", "status"},
	)

	CommandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aprsgate_commands_handled_total",
			Help: "Chat commands dispatched",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(
		PacketsSent,
		TransmitErrors,
		UplinkConnects,
		SessionsActive,
		LocationsThrottled,
		SessionsExpired,
		GatewayRequests,
		CommandsHandled,
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
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
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
