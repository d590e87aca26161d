package cellview

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"pkt.systems/cellview/httpapi"
	"pkt.systems/cellview/internal/cellrender"
	"pkt.systems/cellview/internal/eventbus"
	"pkt.systems/cellview/internal/richtext"
	"pkt.systems/cellview/internal/stream"
	"pkt.systems/cellview/internal/termview"
	"pkt.systems/cellview/schema"
	"pkt.systems/cellview/sshserver"
	"pkt.systems/pslog"
)

// Server composes the update stream, the viewer and its mirrors.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Viewer() *Viewer
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Stream   stream.Config
	RichText bool
	Theme    string
	Plain    bool
	HTTP     httpapi.Config
	SSH      sshserver.Config
}

// Terminal is the local terminal driven by WithTerminal.
type Terminal struct {
	In     io.Reader
	Out    io.Writer
	Width  int
	Height int
	Resize <-chan termview.Size
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	// Messages replaces the stream client as the source of wire messages.
	Messages <-chan schema.Message
	// EventSink also receives viewer changes.
	EventSink EventSink
	Terminal  Terminal
	// Listeners replace the configured addresses.
	HTTPListener net.Listener
	SSHListener  net.Listener
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP     bool
	enableSSH      bool
	enableTerminal bool
}

// WithHTTP enables the HTTP mirror.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH mirror.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// WithTerminal renders the viewer on deps.Terminal. Quitting the terminal
// session stops the server.
func WithTerminal() ServerOption {
	return func(o *serverOptions) { o.enableTerminal = true }
}

// New constructs a composable cellview server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH && !options.enableTerminal {
		return nil, errors.New("no services enabled")
	}
	if options.enableTerminal && (deps.Terminal.In == nil || deps.Terminal.Out == nil) {
		return nil, errors.New("terminal input and output are required")
	}

	var client *stream.Client
	if deps.Messages == nil {
		c, err := stream.New(cfg.Stream)
		if err != nil {
			return nil, err
		}
		client = c
	}

	var hub *httpapi.Hub
	var bus *eventbus.Bus
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.HubHistory)
	}
	if options.enableSSH || options.enableTerminal {
		bus = eventbus.New(nil)
	}
	sinks := make([]EventSink, 0, 3)
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if bus != nil {
		sinks = append(sinks, bus)
	}
	var sink EventSink
	switch len(sinks) {
	case 0:
	case 1:
		sink = sinks[0]
	default:
		sink = eventFanout{sinks: sinks}
	}

	var rich cellrender.RichText
	if cfg.RichText {
		rich = richtext.New()
	}
	viewer := NewViewer(sink, rich)

	srv := &compositeServer{
		cfg:      cfg,
		options:  options,
		deps:     deps,
		viewer:   viewer,
		client:   client,
		bus:      bus,
		messages: deps.Messages,
	}
	if options.enableHTTP {
		srv.httpSrv = httpapi.NewServer(cfg.HTTP, viewer, hub)
	}
	if options.enableSSH {
		sshCfg := cfg.SSH
		if sshCfg.Theme == "" {
			sshCfg.Theme = cfg.Theme
		}
		srv.sshSrv = sshserver.NewServer(sshCfg, viewer, bus)
		srv.sshSrv.Listener = deps.SSHListener
	}
	return srv, nil
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	deps     ServerDeps
	viewer   *Viewer
	client   *stream.Client
	bus      *eventbus.Bus
	messages <-chan schema.Message
	httpSrv  *httpapi.Server
	sshSrv   *sshserver.Server
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	wg      sync.WaitGroup
	started bool
}

func (s *compositeServer) Viewer() *Viewer {
	return s.viewer
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
	s.errCh = make(chan error, 4)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"terminal", s.options.enableTerminal,
		"stream", s.client != nil,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh_addr", s.cfg.SSH.Addr,
	)

	messages := s.messages
	if s.client != nil {
		ch := make(chan schema.Message, 64)
		messages = ch
		s.spawn(func() {
			if err := s.client.Run(s.ctx, ch); err != nil {
				log.Error("stream client failed", "err", err)
				s.errCh <- err
			}
		})
	}
	s.spawn(func() {
		_ = s.viewer.Run(s.ctx, messages)
	})

	if s.httpSrv != nil {
		s.httpSrv.SetBaseContext(s.ctx)
		s.spawn(func() {
			var err error
			if s.deps.HTTPListener != nil {
				err = httpapi.Serve(s.ctx, s.deps.HTTPListener, s.httpSrv.Handler())
			} else {
				err = httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler())
			}
			if err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		})
	}
	if s.sshSrv != nil {
		s.spawn(func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		})
	}
	if s.options.enableTerminal {
		term := s.deps.Terminal
		session := termview.NewSession(s.viewer, term.In, term.Out, s.bus, termview.SessionConfig{
			Theme:     s.cfg.Theme,
			Plain:     s.cfg.Plain,
			AltScreen: !s.cfg.Plain,
		})
		session.SetSize(term.Width, term.Height)
		s.spawn(func() {
			err := session.Run(s.ctx, term.Resize)
			log.Info("terminal session ended")
			s.errCh <- err
		})
	}
	return nil
}

func (s *compositeServer) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until the server context ends or a component stops. A
// stopped component stops the rest.
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
		}
		_ = s.Stop(context.Background())
		return err
	}
}

// Stop cancels every component and waits for them until ctx is done.
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
	log.Info("server stop requested", "seq", s.viewer.Seq())
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if ctx == nil {
		<-done
		log.Info("server stopped")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
