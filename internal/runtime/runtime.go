package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/capability"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/natsserver"
	"github.com/loqalabs/loqa-tts/internal/notify"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/server"
	"github.com/loqalabs/loqa-tts/internal/session"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg     config.Config
	version string
	logger  *slog.Logger

	engine    tts.Engine
	worker    *tts.Worker
	server    *server.Server
	store     *eventstore.Store
	nats      *natsserver.Broker
	bus       *bus.Client
	announcer *capability.Announcer

	httpServer *http.Server
	telemetry  *telemetry
	ready      atomic.Bool
	listening  chan struct{}
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:       cfg,
		version:   version,
		logger:    logger,
		listening: make(chan struct{}),
	}
}

// Start loads the engine, starts every configured service and blocks until
// ctx is cancelled. Startup failures are returned before anything is served.
func (r *Runtime) Start(ctx context.Context) error {
	defer r.shutdown()

	if err := r.setup(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.httpServer != nil {
		ln, err := net.Listen("tcp", r.httpServer.Addr)
		if err != nil {
			return fmt.Errorf("listen http: %w", err)
		}
		g.Go(func() error {
			if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.httpServer.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		return r.server.Serve(gctx)
	})
	if r.store.Enabled() {
		g.Go(func() error {
			r.maintainStore(gctx)
			return nil
		})
	}

	r.ready.Store(true)
	close(r.listening)
	r.logger.Info("runtime started",
		slog.String("addr", r.server.Addr().String()),
		slog.String("engine", r.cfg.Engine.Mode),
		slog.Bool("streaming", r.cfg.Synthesis.Streaming))

	err := g.Wait()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	return err
}

func (r *Runtime) setup(ctx context.Context) error {
	tel, err := newTelemetry(ctx, r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.telemetry = tel

	engine, err := tts.NewEngine(r.cfg, r.logger)
	if err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("load engine: %w", err)
	}
	r.engine = engine
	r.worker = tts.NewWorker(engine, time.Duration(r.cfg.Engine.TimeoutMS)*time.Millisecond, r.logger)

	catalog := tts.NewCatalog(engine.Voices(), r.cfg.Synthesis.DefaultVoice)
	info := tts.Describe(catalog, r.version, r.cfg.Synthesis.Streaming)
	r.logger.Info("engine loaded",
		slog.Int("voices", len(catalog.Voices())),
		slog.Int("sample_rate", engine.SampleRate()))

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.store = store

	var recorders []session.Recorder
	if store.Enabled() {
		recorders = append(recorders, eventstore.NewRecorder(store))
	}

	addr, err := config.ListenAddress(r.cfg.Server.URI)
	if err != nil {
		return err
	}
	opts := session.OptionsFromConfig(r.cfg, catalog, info)

	if r.cfg.Bus.Enabled {
		if err := r.connectBus(ctx); err != nil {
			return err
		}
		recorders = append(recorders, notify.NewPublisher(r.bus, r.cfg.Node.ID, r.logger))
	}

	r.server = server.New(server.Config{
		Address:     addr,
		ReadTimeout: time.Duration(r.cfg.Server.ReadTimeoutMS) * time.Millisecond,
	}, opts, r.worker, session.Recorders(recorders...), r.logger)
	if err := r.server.Listen(); err != nil {
		return err
	}

	if r.bus != nil {
		announcer, err := capability.NewAnnouncer(ctx, r.cfg.Node, protocol.NodeAnnouncement{
			Voices:    catalog.Voices(),
			Languages: config.SupportedLanguages(),
			Streaming: r.cfg.Synthesis.Streaming,
			Address:   r.cfg.Server.URI,
		}, r.server.ActiveSessions, r.bus, r.logger)
		if err != nil {
			return fmt.Errorf("start capability announcer: %w", err)
		}
		r.announcer = announcer
	}

	if r.cfg.HTTP.Port > 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", r.handleHealth)
		mux.HandleFunc("/readyz", r.handleReady)
		mux.Handle("/metrics", tel.Metrics)
		r.httpServer = &http.Server{
			Addr:              net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return nil
}

func (r *Runtime) connectBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		ns, err := natsserver.Start(busCfg, r.cfg.Node.ID, r.logger)
		if err != nil {
			return err
		}
		r.nats = ns
		busCfg.Servers = []string{ns.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.cfg.ServiceName, r.logger)
	if err != nil {
		return err
	}
	r.bus = client
	return nil
}

func (r *Runtime) maintainStore(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Prune(ctx); err != nil {
				r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

// shutdown releases everything setup created, in reverse order.
func (r *Runtime) shutdown() {
	if r.server != nil {
		r.server.Close()
	}
	if r.announcer != nil {
		r.announcer.Close()
	}
	if r.worker != nil {
		r.worker.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.nats != nil {
		r.nats.Shutdown()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	if r.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.telemetry.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

// Listening is closed once the runtime is serving.
func (r *Runtime) Listening() <-chan struct{} { return r.listening }

// ServerAddr is the bound synthesis address. Valid after Listening.
func (r *Runtime) ServerAddr() net.Addr {
	if r.server == nil {
		return nil
	}
	return r.server.Addr()
}

func (r *Runtime) healthy() bool {
	if r.bus != nil && !r.bus.Healthy() {
		return false
	}
	return true
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !r.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	announced := r.announcer == nil || r.announcer.Healthy()
	if r.ready.Load() && announced && r.healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
