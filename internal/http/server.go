package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

type Server struct {
	log *logger.Logger
	srv *nethttp.Server
}

// NewServer leaves WriteTimeout unset so event streams stay open.
func NewServer(log *logger.Logger, addr string, cfg RouterConfig) *Server {
	return &Server{
		log: log.With("component", "HTTPServer"),
		srv: &nethttp.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

func (s *Server) Handler() nethttp.Handler { return s.srv.Handler }

// RegisterOnShutdown runs fn when shutdown starts; long-lived streams use it to end themselves.
func (s *Server) RegisterOnShutdown(fn func()) { s.srv.RegisterOnShutdown(fn) }

// Run serves until ctx is cancelled, then drains in-flight requests for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("HTTP server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
