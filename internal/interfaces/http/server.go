// Package http exposes the read-only operational surface: health, metrics,
// risk status, open positions and recent decisions. Mutating operations go
// through the CLI, never this server.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"contraguard/internal/engine"
	"contraguard/internal/position"
	"contraguard/internal/risk"
	"contraguard/internal/safety"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
	IdleTimeout  time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts Go duration strings for the listener timeouts.
func (c *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain ServerConfig
	aux := struct {
		plain        `yaml:",inline"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
	}{plain: plain(*c)}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*c = ServerConfig(aux.plain)

	for _, field := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{aux.ReadTimeout, "read_timeout", &c.ReadTimeout},
		{aux.WriteTimeout, "write_timeout", &c.WriteTimeout},
		{aux.IdleTimeout, "idle_timeout", &c.IdleTimeout},
	} {
		if field.raw == "" {
			continue
		}
		d, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = d
	}
	return nil
}

// DefaultServerConfig binds local-only by default.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the read-only views the server exposes.
type Deps struct {
	Metrics *MetricsRegistry
	Safety  *safety.Switch
	Manager *position.Manager
	Tracker *risk.DrawdownTracker
}

// Server is the operational HTTP server.
type Server struct {
	router *mux.Router
	server *http.Server
	config ServerConfig
	deps   Deps

	mu        sync.Mutex
	decisions []engine.FinalDecision
}

// decisionHistory is the ring size for /decisions.
const decisionHistory = 50

// NewServer builds the server and its routes.
func NewServer(config ServerConfig, deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		config: config,
		deps:   deps,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// RecordDecision appends a decision to the ring served at /decisions.
func (s *Server) RecordDecision(decision engine.FinalDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, decision)
	if len(s.decisions) > decisionHistory {
		s.decisions = s.decisions[len(s.decisions)-decisionHistory:]
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	s.router.HandleFunc("/decisions", s.handleDecisions).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "path": r.URL.Path})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"safety":    s.deps.Safety.State().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	open := s.deps.Manager.OpenPositions()
	writeJSON(w, http.StatusOK, map[string]any{
		"safety_state":   s.deps.Safety.State().String(),
		"safety_reason":  s.deps.Safety.Reason(),
		"drawdown_pct":   s.deps.Tracker.Drawdown(),
		"peak_equity":    s.deps.Tracker.Peak(),
		"daily_loss_pct": s.deps.Tracker.DailyLossPct(),
		"open_positions": len(open),
		"exposure":       s.deps.Manager.OpenExposure(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	open := s.deps.Manager.OpenPositions()
	records := make([]position.Record, 0, len(open))
	for _, p := range open {
		records = append(records, p.ToRecord())
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]engine.FinalDecision, len(s.decisions))
	copy(out, s.decisions)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
