// internal/runtime/server.go
package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"contract-runtime/internal/common/config"
	"contract-runtime/internal/common/errors"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/dispatch"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is the health probe a backing service exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front of the runtime: static endpoints plus the
// catch-all route into the dispatcher.
type Server struct {
	httpServer *http.Server
	snapshot   *Snapshot
	dispatcher *dispatch.Dispatcher
	cfg        config.ServerConfig
	logger     logger.Logger
	probes     map[string]Pinger
}

func NewServer(cfg config.ServerConfig, snapshot *Snapshot, dispatcher *dispatch.Dispatcher, reloadEnabled bool, log logger.Logger, probes map[string]Pinger) *Server {
	s := &Server{
		snapshot:   snapshot,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     log,
		probes:     probes,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if reloadEnabled {
		r.Post("/-/reload", s.handleReload)
	}
	r.NotFound(s.handleDispatch)
	r.MethodNotAllowed(s.handleDispatch)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Millisecond,
	}
	return s
}

// Run serves until ctx is cancelled, then drains within the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", map[string]interface{}{
			"address": s.cfg.Address,
		})
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.ShutdownTimeout)*time.Millisecond)
	defer cancel()
	s.logger.Info("shutting down http server", nil)
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleDispatch routes every non-static request through the dispatcher
// against the snapshot in force at entry.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	c := s.snapshot.Current()
	if c == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errors.ToProblem(errors.NewContractInvalidError("no contract loaded")))
		return
	}
	s.dispatcher.Dispatch(w, r, c)
}

// handleReload revalidates the document and swaps atomically. An invalid
// document leaves the previous snapshot serving and reports the failure.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshot.Load(); err != nil {
		s.logger.Error("contract reload rejected", map[string]interface{}{
			"error": err,
		})
		writeJSON(w, http.StatusUnprocessableEntity, errors.ToProblem(err))
		return
	}
	c := s.snapshot.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contract":   c.ID,
		"version":    c.Version,
		"operations": len(c.Operations),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.probes))
	for name, probe := range s.probes {
		if err := probe.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}
	if s.snapshot.Current() == nil {
		checks["contract"] = "not loaded"
		status = http.StatusServiceUnavailable
	} else {
		checks["contract"] = "ok"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
