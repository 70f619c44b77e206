package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/service"
)

// Server represents the API server
type Server struct {
	handler    *Handler
	httpServer *http.Server
}

// NewServer creates a new API server for the given reconciler.
func NewServer(bindAddr string, svc Reconciler, lockFile string) *Server {
	metrics := NewMetrics()
	handler := NewHandler(svc, metrics, lockFile)

	return &Server{
		handler:    handler,
		// A reconcile waits for leases, so writes get a generous deadline.
		httpServer: &http.Server{
			Addr:         bindAddr,
			Handler:      NewRouter(handler, metrics),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	log.Infof("[API] Starting server on %s", s.httpServer.Addr)
	log.Infof("[API] Example: curl http://%s/api/v1/status", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Reconcile runs a reconcile pass under the same exclusion as POST
// /api/v1/reconcile. It returns false if another run is in progress.
func (s *Server) Reconcile(ctx context.Context) (*service.Report, bool) {
	return s.handler.TryReconcile(ctx)
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[API] Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}
