// Package api provides the HTTP and WebSocket gateway for Telegate.
//
// It exposes a health endpoint, the real-time telemetry WebSocket, and a
// device command route. Device CRUD, login, and user management live in
// the collaborator HTTP layer.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/telegate/telegate/internal/device"
	"github.com/telegate/telegate/internal/infrastructure/config"
	"github.com/telegate/telegate/internal/infrastructure/logging"
	"github.com/telegate/telegate/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AccessChecker decides whether a user may observe a device.
// Satisfied by access.Service; stubbed in tests.
type AccessChecker interface {
	CanAccessDevice(ctx context.Context, userID, deviceID string) (bool, error)
}

// CommandSender publishes a command to a device over the transport.
// Satisfied by telemetry.Publisher; stubbed in tests.
type CommandSender interface {
	SendCommand(imei string, payload map[string]any) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Bus      *telemetry.Bus
	Access   AccessChecker
	Commands CommandSender
	Version  string
}

// Server is the HTTP gateway for Telegate.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	registry *device.Registry
	bus      *telemetry.Bus
	access   AccessChecker
	commands CommandSender
	version  string

	server         *http.Server
	hub            *Hub
	cancel         context.CancelFunc // cancels background goroutines on Close()
	unsubscribeBus func()             // detaches the hub from the event bus
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if deps.Access == nil {
		return nil, fmt.Errorf("access checker is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		registry: deps.Registry,
		bus:      deps.Bus,
		access:   deps.Access,
		commands: deps.Commands,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It creates the WebSocket hub, attaches it to the telemetry bus, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of the
	// parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.access, s.logger)
	go s.hub.Run(srvCtx)

	// Telemetry events flow from the ingestion goroutine to connected
	// clients through the hub. DispatchEvent never blocks.
	s.unsubscribeBus = s.bus.Subscribe(s.hub.DispatchEvent)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It detaches the hub from the event bus, waits up to 10 seconds for
// in-flight requests to complete, then forcefully closes remaining
// connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubscribeBus != nil {
		s.unsubscribeBus()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
