package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/beacon"
	"github.com/k3vt/aprsgate/internal/command"
	"github.com/k3vt/aprsgate/internal/config"
	"github.com/k3vt/aprsgate/internal/metrics"
	"github.com/k3vt/aprsgate/internal/storage"
)

// Server is the bridge-facing HTTP API. The chat bridge authenticates
// with the shared bearer token and feeds locations and command messages
// through it.
type Server struct {
	cfg      config.GatewayConfig
	manager  *beacon.Manager
	commands *command.Dispatcher
	store    storage.Store
	logger   zerolog.Logger
	server   *http.Server
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates the gateway server.
func NewServer(cfg config.GatewayConfig, manager *beacon.Manager, commands *command.Dispatcher,
	store storage.Store, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		manager:  manager,
		commands: commands,
		store:    store,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/v1/locations", s.handleLocation)
		r.Post("/v1/messages", s.handleMessage)
		r.Get("/v1/beacons", s.handleBeacons)
	})

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port)),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the gateway server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated gateway listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop gracefully stops the gateway server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping gateway server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// auth checks the shared bridge token.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.BridgeToken)) != 1 {
			s.respondError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type locationRequest struct {
	UserID     int64   `json:"user_id"`
	ChatID     int64   `json:"chat_id"` // notification target, 0 = user_id
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timestamp  int64   `json:"timestamp"`   // unix seconds, 0 = now
	LivePeriod int     `json:"live_period"` // seconds, 0 = one-shot
}

type messageRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 {
		s.respondError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp > 0 {
		ts = time.Unix(req.Timestamp, 0).UTC()
	}
	ev := beacon.LocationEvent{
		UserID:     req.UserID,
		ChatID:     req.ChatID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Timestamp:  ts,
		LivePeriod: time.Duration(req.LivePeriod) * time.Second,
	}

	outcome, err := s.manager.SubmitLocation(r.Context(), ev)
	if errors.Is(err, beacon.ErrNotApproved) {
		s.respondError(w, r, http.StatusForbidden, command.UnauthorizedReply)
		return
	}
	if errors.Is(err, beacon.ErrProfileMissing) {
		s.respondError(w, r, http.StatusUnprocessableEntity, "no callsign configured, send /setcall first")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", req.UserID).Msg("Location submit failed")
		s.respondError(w, r, http.StatusBadGateway, "transmission failed, please try again")
		return
	}
	s.respond(w, r, http.StatusOK, map[string]string{"outcome": outcome.String()})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 {
		s.respondError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	reply, err := s.commands.Handle(r.Context(), command.Message{
		UserID:   req.UserID,
		Username: req.Username,
		Text:     req.Text,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", req.UserID).Msg("Command failed")
		s.respondError(w, r, http.StatusInternalServerError, "command failed, please try again")
		return
	}
	s.respond(w, r, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleBeacons(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.store.BeaconLog().Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Beacon log query failed")
		s.respondError(w, r, http.StatusInternalServerError, "query failed")
		return
	}
	if entries == nil {
		entries = []storage.BeaconEntry{}
	}
	s.respond(w, r, http.StatusOK, entries)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, payload any) {
	metrics.GatewayRequests.WithLabelValues(r.URL.Path, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	s.respond(w, r, code, map[string]string{"error": msg})
}
