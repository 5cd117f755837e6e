// Package httpapi exposes the management and annotator operations over HTTP.
//
// Routes live under /api/management and /api/annotate and require an
// authenticated principal; GET /healthz is open. Errors are JSON objects of
// the form {"detail": "..."} with the status chosen by the error kind.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"annopedia/internal/auth"
	"annopedia/internal/config"
	"annopedia/internal/logging"
	"annopedia/internal/management"

	"golang.org/x/net/netutil"
)

// Authenticator identifies the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.Principal, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the Annopedia HTTP API.
type Server struct {
	cfg     config.ServerConfig
	svc     *management.Service
	authn   Authenticator
	health  Pinger
	handler http.Handler

	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
}

// New builds the server and its routes.
func New(cfg *config.Config, svc *management.Service, authn Authenticator, health Pinger) *Server {
	s := &Server{
		cfg:             cfg.Server,
		svc:             svc,
		authn:           authn,
		health:          health,
		readTimeout:     cfg.GetReadTimeout(),
		writeTimeout:    cfg.GetWriteTimeout(),
		shutdownTimeout: cfg.GetShutdownTimeout(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with recovery and request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout. At most
// MaxConnections connections are served at once when the limit is set.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logging.Boot("HTTP API listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logging.Boot("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
