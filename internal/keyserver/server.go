// Package keyserver serves API keys to clients that should not embed them.
package keyserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"livescribe/internal/domain"
	"livescribe/internal/observability/logging"
	"livescribe/internal/ports"
)

// Config wires the key endpoints.
type Config struct {
	Addr     string
	Deepgram ports.KeySource
	Gemini   ports.KeySource
	Gatherer prometheus.Gatherer
}

// Server exposes /api/deepgram-key, /api/gemini-key, /healthz and /metrics.
type Server struct {
	cfg    Config
	server *http.Server
	log    zerolog.Logger
}

func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{cfg: cfg, log: logging.WithComponent("keyserver")}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/deepgram-key", s.keyHandler(s.cfg.Deepgram, "DEEPGRAM_API_KEY is not set in environment variables.")).Methods(http.MethodGet)
	router.HandleFunc("/api/gemini-key", s.keyHandler(s.cfg.Gemini, "Gemini API key not configured.")).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

func (s *Server) keyHandler(source ports.KeySource, notConfigured string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": notConfigured})
			return
		}
		key, err := source.FetchKey(r.Context())
		switch {
		case err == nil && key != "":
			writeJSON(w, http.StatusOK, map[string]string{"key": key})
		case err == nil || errors.Is(err, domain.ErrKeyNotConfigured):
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": notConfigured})
		default:
			s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("key lookup failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Key lookup failed, try again."})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("starting key server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down key server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
