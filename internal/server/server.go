package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
	"github.com/cyberbuild/cb-trade-data-service/internal/store"
	"github.com/cyberbuild/cb-trade-data-service/internal/stream"
	"github.com/cyberbuild/cb-trade-data-service/internal/version"
)

// latestWindow bounds how far back the latest-entry lookup searches.
const latestWindow = 24 * time.Hour

// Server serves the streaming and query endpoints.
type Server struct {
	cfg         config.ServerConfig
	store       store.Store
	registry    *exchange.Registry
	coordinator *stream.Coordinator
	logger      *slog.Logger

	httpServer *http.Server
}

// New creates a server. ListenAndServe must be called before it accepts
// connections.
func New(cfg config.ServerConfig, st store.Store, registry *exchange.Registry, coordinator *stream.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:         cfg,
		store:       st,
		registry:    registry,
		coordinator: coordinator,
		logger:      logger,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/historical", s.handleHistorical)
	mux.HandleFunc("GET /v1/latest", s.handleLatest)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe binds the listener and serves until Shutdown is called.
// A shutdown-initiated stop returns nil.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.logger.Info("server listening", "addr", ln.Addr().String())

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Pinger is implemented by store backends with an external connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth reports service liveness, storage reachability and the
// registered exchanges.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status    string   `json:"status"`
		Version   string   `json:"version"`
		Storage   string   `json:"storage"`
		Exchanges []string `json:"exchanges"`
	}

	h := health{
		Status:    "ok",
		Version:   version.String(),
		Storage:   "ok",
		Exchanges: s.registry.Names(),
	}

	code := http.StatusOK
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Status = "degraded"
			h.Storage = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, h)
}

// handleLatest returns the most recent stored entry for (exchange, coin)
// within the trailing 24 hours.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	exchangeName := r.URL.Query().Get("exchange")
	coin := r.URL.Query().Get("coin")
	if exchangeName == "" || coin == "" {
		writeError(w, http.StatusBadRequest, "exchange and coin query parameters are required")
		return
	}

	latest, found, err := s.store.LatestTimestamp(r.Context(), exchangeName, coin)
	if err != nil {
		s.logger.Error("latest lookup failed", "exchange", exchangeName, "coin", coin, "error", err)
		writeError(w, http.StatusInternalServerError, "storage lookup failed")
		return
	}
	if !found || time.Since(latest) > latestWindow {
		writeError(w, http.StatusNotFound, "no recent data")
		return
	}

	// The exclusive end bound only has to fall after latest at whatever
	// timestamp resolution the backend stores; latest is the maximum, so the
	// last entry of the range is the one we want.
	entries, err := s.store.GetRange(r.Context(), exchangeName, coin, latest, latest.Add(latestWindow))
	if err != nil {
		s.logger.Error("latest lookup failed", "exchange", exchangeName, "coin", coin, "error", err)
		writeError(w, http.StatusInternalServerError, "storage lookup failed")
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "no recent data")
		return
	}

	writeJSON(w, http.StatusOK, entries[len(entries)-1])
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
