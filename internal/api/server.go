package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/astroconsole/internal/audit"
	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/gateway"
	"github.com/nerrad567/astroconsole/internal/infrastructure/config"
	"github.com/nerrad567/astroconsole/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// readHeaderTimeout bounds the request line and headers on both listeners.
const readHeaderTimeout = 10 * time.Second

// LayoutStore loads and replaces the persisted UI layout. *layout.Store implements it.
type LayoutStore interface {
	Load() ([]byte, error)
	Save(raw json.RawMessage) error
}

// LinkStatus reports upstream link statistics. *indi.Link implements it.
type LinkStatus interface {
	Stats() indi.Stats
}

// HealthChecker is a component that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DropCounter reports updates a mirror discarded. The mirror sinks implement it.
type DropCounter interface {
	Dropped() uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Proxy     config.ListenConfig
	WebUI     config.WebUIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Hub       *gateway.Hub
	Commander gateway.Commander
	Layout    LayoutStore
	Audit     audit.Repository         // optional: command log
	Link      LinkStatus               // optional: link statistics in health and metrics
	Checks    map[string]HealthChecker // optional: database, mqtt, influxdb
	Mirrors   map[string]DropCounter   // optional: mirror queue drops in metrics
	Version   string
}

// Server runs the proxy listener (client sessions and REST) and the web UI
// listener (static files).
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	err = server.Start(ctx)
//	defer server.Close()
type Server struct {
	proxyCfg  config.ListenConfig
	webCfg    config.WebUIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	hub       *gateway.Hub
	commander gateway.Commander
	layout    LayoutStore
	audit     audit.Repository
	link      LinkStatus
	checks    map[string]HealthChecker
	mirrors   map[string]DropCounter
	version   string
	startTime time.Time
	upgrader  websocket.Upgrader

	proxyServer *http.Server
	webServer   *http.Server
	proxyLn     net.Listener
	webLn       net.Listener
	cancel      context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[*session]struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if deps.Commander == nil {
		return nil, fmt.Errorf("commander is required")
	}
	if deps.Layout == nil {
		return nil, fmt.Errorf("layout store is required")
	}
	if deps.WS.SendBuffer <= 0 {
		return nil, fmt.Errorf("websocket send buffer must be positive")
	}

	return &Server{
		proxyCfg:  deps.Proxy,
		webCfg:    deps.WebUI,
		wsCfg:     deps.WS,
		logger:    deps.Logger.With("component", "api"),
		hub:       deps.Hub,
		commander: deps.Commander,
		layout:    deps.Layout,
		audit:     deps.Audit,
		link:      deps.Link,
		checks:    deps.Checks,
		mirrors:   deps.Mirrors,
		version:   deps.Version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser UI is served from a different port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}, nil
}

// Start binds both listeners and serves them in background goroutines.
//
// Binding happens before Start returns, so an address already in use is
// reported here.
//
// Returns:
//   - error: If either listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.startTime = time.Now()

	proxyLn, err := net.Listen("tcp", s.proxyCfg.Address())
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding proxy listener %s: %w", s.proxyCfg.Address(), err)
	}
	webLn, err := net.Listen("tcp", s.webCfg.Address())
	if err != nil {
		proxyLn.Close() //nolint:errcheck // Listener was never served
		s.cancel()
		return fmt.Errorf("binding web UI listener %s: %w", s.webCfg.Address(), err)
	}
	s.proxyLn, s.webLn = proxyLn, webLn

	baseContext := func(net.Listener) context.Context { return srvCtx }
	s.proxyServer = &http.Server{
		Handler:           s.buildProxyRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       baseContext,
	}
	s.webServer = &http.Server{
		Handler:           s.buildWebUIRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       baseContext,
	}

	s.serve("proxy", s.proxyServer, proxyLn)
	s.serve("web UI", s.webServer, webLn)
	return nil
}

func (s *Server) serve(name string, srv *http.Server, ln net.Listener) {
	s.logger.Info(name+" listener started", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(name+" listener error", "error", err)
		}
	}()
}

// ProxyAddr returns the bound proxy address, or "" before Start.
func (s *Server) ProxyAddr() string {
	if s.proxyLn == nil {
		return ""
	}
	return s.proxyLn.Addr().String()
}

// WebUIAddr returns the bound web UI address, or "" before Start.
func (s *Server) WebUIAddr() string {
	if s.webLn == nil {
		return ""
	}
	return s.webLn.Addr().String()
}

// Close ends every client session and gracefully shuts down both listeners.
//
// It waits up to 10 seconds for in-flight requests to complete.
func (s *Server) Close() error {
	if s.proxyServer == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.logger.Info("API server shutting down", "sessions", s.sessionCount())
	s.closeSessions(websocket.CloseGoingAway, "server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.proxyServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down proxy listener: %w", err))
	}
	if err := s.webServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down web UI listener: %w", err))
	}
	return errors.Join(errs...)
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.proxyServer == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

func (s *Server) track(sess *session) {
	s.sessionsMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessionsMu.Unlock()
}

func (s *Server) untrack(sess *session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess)
	s.sessionsMu.Unlock()
}

func (s *Server) sessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

func (s *Server) closeSessions(code int, text string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	for sess := range s.sessions {
		sess.close(code, text)
	}
}
