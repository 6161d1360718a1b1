// Package api serves the read-only HTTP status surface.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"watchlistarr/internal/api/handlers"
	"watchlistarr/internal/api/middleware"
	"watchlistarr/internal/models"
	"watchlistarr/internal/search"
)

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// NewServer builds the status server on the given port.
func NewServer(port string, db *models.Database, counter *search.DailyCounter,
	limits search.Limits, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.Health)
	mux.Handle("/status", handlers.NewStatusHandler(db, counter, limits, logger))

	handler := middleware.Logging(logger)(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the server until it is shut down. http.ErrServerClosed is not
// an error.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting status server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server failed: %w", err)
	}
	return nil
}

// Shutdown drains and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
