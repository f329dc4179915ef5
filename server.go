package tabstack

import (
	"context"
	"errors"
	"net"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/core"
	"pkt.systems/tabstack/httpapi"
	"pkt.systems/tabstack/internal/bridge"
	"pkt.systems/tabstack/internal/command"
	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/schema"
	"pkt.systems/tabstack/sshserver"
)

// Server composes the HTTP API, the browser bridge and the SSH console.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Controller          schema.ControllerConfig
	HTTP                httpapi.Config
	SSH                 sshserver.Config
	Bridge              bridge.Config
	DisableAuditLogging bool
}

// ServerDeps captures optional dependencies. Listeners override the
// configured addresses; SSHKeys overrides SSH.AuthorizedKeysPath.
type ServerDeps struct {
	Logger       pslog.Logger
	HTTPListener net.Listener
	SSHListener  net.Listener
	SSHKeys      *sshserver.AuthorizedKeys
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableSSH  bool
}

// WithHTTP enables the HTTP API and the browser bridge endpoint.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH operator console.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// New constructs a composable tabstack server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH {
		return nil, errors.New("no services enabled")
	}
	// The browser reaches the daemon through the bridge endpoint only.
	if !options.enableHTTP {
		return nil, errors.New("ssh console requires the http bridge endpoint")
	}

	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	bus := eventbus.New(logger)
	hub := httpapi.NewHub(cfg.HTTP.HubHistory)
	br := bridge.New(cfg.Bridge, bus)
	ctrl, err := core.NewController(cfg.Controller, core.ControllerDeps{
		Tabs:      br,
		Presenter: presenterFanout{sinks: []core.Presenter{hub, bus}},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	br.Bind(ctrl)

	httpSrv := httpapi.NewServer(cfg.HTTP, httpapi.ServerDeps{Controller: ctrl, Hub: hub, Bridge: br})

	var sshSrv *sshserver.Server
	if options.enableSSH {
		keys := deps.SSHKeys
		if keys == nil {
			keys, err = sshserver.LoadAuthorizedKeys(cfg.SSH.AuthorizedKeysPath)
			if err != nil {
				return nil, err
			}
		}
		cmdHandler := command.NewHandler(ctrl, br, nil, command.HandlerConfig{
			DisableAuditLogging: cfg.DisableAuditLogging,
		})
		sshSrv = &sshserver.Server{
			Addr:        cfg.SSH.Addr,
			HostKeyPath: cfg.SSH.HostKeyPath,
			Listener:    deps.SSHListener,
			Handler:     cmdHandler,
			Keys:        keys,
			EventBus:    bus,
			Prompt:      cfg.SSH.Prompt,
		}
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		ctrl:    ctrl,
		bridge:  br,
		httpSrv: httpSrv,
		httpLn:  deps.HTTPListener,
		sshSrv:  sshSrv,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	ctrl    *core.StackController
	bridge  *bridge.Bridge
	httpSrv *httpapi.Server
	httpLn  net.Listener
	sshSrv  *sshserver.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	wg      sync.WaitGroup
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh_addr", s.cfg.SSH.Addr,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		s.serve("http", func(ctx context.Context) error {
			if s.httpLn != nil {
				return httpapi.Serve(ctx, s.httpLn, s.httpSrv.Handler())
			}
			return httpapi.ListenAndServe(ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler())
		})
	}
	if s.options.enableSSH && s.sshSrv != nil {
		s.serve("ssh", s.sshSrv.ListenAndServe)
	}
	return nil
}

func (s *compositeServer) serve(name string, run func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(s.ctx); err != nil {
			s.logger.Error(name+" server failed", "err", err)
			s.errCh <- err
		}
	}()
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested", "stacks", len(s.ctrl.Stacks()), "bridge_connected", s.bridge.Connected())
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
