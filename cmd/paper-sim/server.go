package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/monitoring"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// metricsServer exposes Prometheus metrics and session health
type metricsServer struct {
	router *mux.Router
	server *http.Server
	logger *logger.Logger
}

func newMetricsServer(addr string, health *monitoring.HealthChecker, log *logger.Logger) *metricsServer {
	s := &metricsServer{router: mux.NewRouter(), logger: log}
	s.router.Use(s.requestIDMiddleware)
	s.router.Handle("/metrics", monitoring.NewMetricsHandler()).Methods(http.MethodGet)
	s.router.Handle("/healthz", health).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves in the background
func (s *metricsServer) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.LogError("Metrics server", err)
		}
	}()
}

// Shutdown stops the server, waiting at most 5s for open requests
func (s *metricsServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *metricsServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.New().String()[:8])
		next.ServeHTTP(w, r)
	})
}
