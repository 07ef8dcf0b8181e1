package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/geotms/server/internal/callback"
	"github.com/geotms/server/internal/netutil"
	"github.com/geotms/server/internal/tmserr"
)

// ServerConfig contains server configuration.
type ServerConfig struct {
	CORSOrigins []string
	Logger      *zap.Logger
	// Metrics defaults to a fresh registry without cache collectors.
	Metrics *Metrics
	// Gateway configures the shared callback gateway on first bind.
	Gateway callback.Config
	// ShutdownTimeout bounds how long Unbind waits for in-flight requests.
	ShutdownTimeout time.Duration
	// Resolver picks the advertised host for wildcard binds.
	Resolver netutil.Resolver
}

// Server is a TMS endpoint for one tile route. It can be bound, unbound
// and bound again.
type Server struct {
	tiler   Tiler
	cfg     ServerConfig
	logger  *zap.Logger
	metrics *Metrics
	handler http.Handler

	hsMu      sync.RWMutex
	handshake string

	mu   sync.RWMutex
	srv  *http.Server
	done chan struct{}
	host string
	port int
}

// NewServer creates an unbound server.
func NewServer(tiler Tiler, cfg ServerConfig) (*Server, error) {
	if tiler == nil {
		return nil, tmserr.Configf("server needs a tile route")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	s := &Server{tiler: tiler, cfg: cfg, logger: logger, metrics: metrics}
	s.handler = NewRouter(RouterConfig{
		Tiler:       tiler,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
		Metrics:     metrics,
		Handshake:   s.Handshake,
	})
	return s, nil
}

// Bind starts serving on host:port. Port 0 picks a free port. A failed
// bind leaves the server unbound.
func (s *Server) Bind(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return &tmserr.StateError{Msg: fmt.Sprintf("server already bound to %s:%d", s.host, s.port)}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &tmserr.BindingError{Addr: addr, Err: err}
	}

	callback.Acquire(s.cfg.Gateway, s.logger)

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()

	s.srv = srv
	s.done = done
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.host = netutil.ReachableHost(host, s.cfg.Resolver)

	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()), zap.String("host", s.host), zap.Int("port", s.port))
	return nil
}

// Unbind stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests. Calling it on an unbound server does nothing.
func (s *Server) Unbind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("forcing server close", zap.Error(err))
		err = s.srv.Close()
	}
	<-s.done

	callback.Release()
	s.logger.Info("server stopped", zap.String("host", s.host), zap.Int("port", s.port))

	s.srv = nil
	s.done = nil
	s.host = ""
	s.port = 0
	return err
}

// Bound reports whether the server is listening.
func (s *Server) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.srv != nil
}

// Host returns the advertised host, or "" when unbound.
func (s *Server) Host() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

// Port returns the bound port, or 0 when unbound.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// SetHandshake stores the token served at /handshake.
func (s *Server) SetHandshake(token string) {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	s.handshake = token
}

// Handshake returns the token served at /handshake.
func (s *Server) Handshake() string {
	s.hsMu.RLock()
	defer s.hsMu.RUnlock()
	return s.handshake
}

// URLPattern returns the tile URL template with {z}, {x} and {y}
// placeholders.
func (s *Server) URLPattern() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.srv == nil {
		return "", &tmserr.StateError{Msg: "server is not bound"}
	}
	return fmt.Sprintf("http://%s/tile/{z}/{x}/{y}.png", net.JoinHostPort(s.host, strconv.Itoa(s.port))), nil
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
