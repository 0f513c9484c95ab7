// Package web serves a read-only live view of a batch run.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"stemprep/internal/logger"
)

type Server struct {
	mon    *Monitor
	logger *logger.Logger
	srv    *http.Server
}

func NewServer(mon *Monitor, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{mon: mon, logger: log}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/files", s.handleFiles)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return s.loggingMiddleware(mux)
}

// Start listens on addr and serves in the background. The bound address is
// returned so ":0" can be used.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("monitor listen on %s: %w", addr, err)
	}

	s.srv = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("Monitor listening on http://%s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Monitor server error: %v", err)
		}
	}()

	return ln.Addr(), nil
}

// Shutdown stops the server, waiting for open requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
