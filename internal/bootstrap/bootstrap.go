// Package bootstrap assembles the engine from its parts: configuration,
// logging, the credential store, the shared API client and the three domain
// services. Initialisation runs as an ordered step graph so a failure names
// the stage that broke.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"medialink-client-go/internal/domain/discovery"
	"medialink-client-go/internal/domain/eventbus"
	"medialink-client-go/internal/domain/pairing"
	"medialink-client-go/internal/domain/session"
	sessionstore "medialink-client-go/internal/domain/session/store"
	platformconfig "medialink-client-go/internal/platform/config"
	platformerrors "medialink-client-go/internal/platform/errors"
	platformlogging "medialink-client-go/internal/platform/logging"
	platformstorage "medialink-client-go/internal/platform/storage"
	"medialink-client-go/internal/transport/api"
	httptransport "medialink-client-go/internal/transport/http"
	"medialink-client-go/internal/transport/http/devserver"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	configPath string

	config      *platformconfig.Config
	logger      *platformlogging.Logger
	db          *gorm.DB
	store       sessionstore.Store
	client      *api.Client
	probeClient *api.Client
	resolver    *discovery.Resolver
	manager     *session.Manager
	coordinator *pairing.Coordinator
}

// Engine is the fully wired client engine handed to callers.
type Engine struct {
	Config      *platformconfig.Config
	Logger      *platformlogging.Logger
	Store       sessionstore.Store
	Resolver    *discovery.Resolver
	Session     *session.Manager
	Pairing     *pairing.Coordinator
	APIClient   *api.Client
	ProbeClient *api.Client

	db *gorm.DB
}

// Options selects the configuration source for NewEngine.
type Options struct {
	ConfigPath string
}

// NewEngine runs the init graph and returns the assembled engine.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	state := &appState{configPath: opts.ConfigPath}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return nil, err
	}

	return &Engine{
		Config:      state.config,
		Logger:      state.logger,
		Store:       state.store,
		Resolver:    state.resolver,
		Session:     state.manager,
		Pairing:     state.coordinator,
		APIClient:   state.client,
		ProbeClient: state.probeClient,
		db:          state.db,
	}, nil
}

// Close releases the engine's durable resources.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.Pairing != nil {
		e.Pairing.Cancel()
	}
	if e.Store != nil {
		if err := e.Store.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.Logger != nil {
		if err := e.Logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// InitGraph declares the engine's initialisation stages in dependency order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load-file",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-file"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load-file"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "store:init-credentials",
			Title:     "Initialise credential store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initCredentialStoreStep,
		},
		{
			ID:        "transport:init-client",
			Title:     "Initialise API client",
			DependsOn: []string{"config:load-file", "logging:init-provider"},
			Kind:      platformerrors.KindTransport,
			Execute:   initAPIClientStep,
		},
		{
			ID:        "discovery:init-resolver",
			Title:     "Initialise server resolver",
			DependsOn: []string{"transport:init-client"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initResolverStep,
		},
		{
			ID:        "session:init-manager",
			Title:     "Initialise session manager",
			DependsOn: []string{"store:init-credentials", "transport:init-client"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initSessionManagerStep,
		},
		{
			ID:        "pairing:init-coordinator",
			Title:     "Initialise pairing coordinator",
			DependsOn: []string{"session:init-manager"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPairingStep,
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if stderrors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().WithDotEnv(true)
	if state.configPath != "" {
		loader = loader.WithPath(state.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if cfg.Client.ID == "" {
		cfg.Client.ID = uuid.NewString()
	}
	state.config = cfg
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	logger.Info("configuration loaded, client id %s", state.config.Client.ID)
	return nil
}

// initDatabaseStep opens the sqlite handle only when the credential store
// actually needs it.
func initDatabaseStep(_ context.Context, state *appState) error {
	if state.config.Store.Driver != sessionstore.DriverSQLite {
		return nil
	}
	db, err := platformstorage.Open(state.config.Store.SQLite.DSN, &platformstorage.CredentialSnapshot{})
	if err != nil {
		return err
	}
	state.db = db
	return nil
}

func initCredentialStoreStep(_ context.Context, state *appState) error {
	cfg := sessionstore.Config{
		Driver: state.config.Store.Driver,
	}
	if r := state.config.Store.Redis; r.Addr != "" {
		cfg.Redis = &sessionstore.RedisConfig{
			Addr:     r.Addr,
			Username: r.Username,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
		}
	}
	if state.config.Store.SQLite.DSN != "" {
		cfg.SQLite = &sessionstore.SQLiteConfig{DSN: state.config.Store.SQLite.DSN}
	}

	credStore, err := sessionstore.New(cfg, sessionstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return err
	}
	state.store = credStore
	return nil
}

func initAPIClientStep(_ context.Context, state *appState) error {
	cfg := state.config
	userAgent := fmt.Sprintf("%s/%s", cfg.Client.Name, cfg.Client.Version)

	state.client = api.NewClient(api.Options{
		ClientID:  cfg.Client.ID,
		UserAgent: userAgent,
		Timeout:   cfg.Session.RequestTimeout,
	})
	// Discovery probes carry their own tighter bound so a dead candidate
	// never stalls resolution for the full request timeout.
	state.probeClient = api.NewClient(api.Options{
		ClientID:  cfg.Client.ID,
		UserAgent: userAgent,
		Timeout:   cfg.Resolver.ProbeTimeout,
	})
	return nil
}

func initResolverStep(_ context.Context, state *appState) error {
	probe := discovery.NewProbe(state.probeClient)
	state.resolver = discovery.NewResolver(probe, state.logger, eventbus.Get())
	return nil
}

func initSessionManagerStep(_ context.Context, state *appState) error {
	manager, err := session.NewManager(session.Options{
		Store:  state.store,
		Client: state.client,
		Logger: state.logger,
		Bus:    eventbus.Get(),
	})
	if err != nil {
		return err
	}
	state.manager = manager
	return nil
}

func initPairingStep(_ context.Context, state *appState) error {
	coordinator, err := pairing.NewCoordinator(pairing.Options{
		Client:            state.client,
		Sink:              state.manager,
		Logger:            state.logger,
		Bus:               eventbus.Get(),
		MaxRequestRetries: state.config.Pairing.MaxRequestRetries,
	})
	if err != nil {
		return err
	}
	state.coordinator = coordinator
	return nil
}

// RunDevServer starts the bundled reference server and blocks until the
// context is cancelled or a termination signal arrives.
func RunDevServer(ctx context.Context, opts Options) error {
	state := &appState{configPath: opts.ConfigPath}
	steps := []initStep{
		{
			ID:      "config:load-file",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-file"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
	}
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	cfg := state.config
	logger := state.logger
	defer logger.Close()

	db, err := platformstorage.Open(cfg.DevServer.SQLiteDSN, &platformstorage.Account{})
	if err != nil {
		return err
	}

	service, err := devserver.NewService(cfg.DevServer, db, logger)
	if err != nil {
		return err
	}
	if err := service.EnsureAccount("dev@medialink.local", "dev", "devpass", "admin"); err != nil {
		return err
	}

	router, err := httptransport.Build(httptransport.Options{
		Config:     cfg,
		Logger:     logger,
		StaticRoot: cfg.DevServer.StaticDir,
	})
	if err != nil {
		return err
	}
	if err := service.Register(ctx, router); err != nil {
		return err
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	httpServer := &http.Server{
		Addr:    cfg.DevServer.IP + ":" + strconv.Itoa(cfg.DevServer.Port),
		Handler: router.Engine,
	}

	group.Go(func() error {
		logger.Info("reference server listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown failed: %v", err)
			} else {
				logger.Info("http server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed: %v", err)
			return err
		}
		return nil
	})

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.Info("shutdown requested: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown finished with error: %v", err)
			return err
		}
		logger.Info("all services stopped")
	case <-time.After(15 * time.Second):
		logger.Error("shutdown timed out")
		return stderrors.New("shutdown timed out")
	}
	return nil
}
