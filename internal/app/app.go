package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/educhat/internal/auth"
	"github.com/vovakirdan/educhat/internal/bus"
	"github.com/vovakirdan/educhat/internal/config"
	"github.com/vovakirdan/educhat/internal/core"
	"github.com/vovakirdan/educhat/internal/identity"
	"github.com/vovakirdan/educhat/internal/store"
	"github.com/vovakirdan/educhat/internal/store/mongo"
	"github.com/vovakirdan/educhat/internal/store/postgres"
	"github.com/vovakirdan/educhat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/educhat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	bus             *bus.Redis
	closers         []io.Closer
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st)
	logger.Info().Str("db_driver", cfg.DBDriver).Msg("database initialized")

	var profiles store.ProfileStore = st
	if cfg.ProfileBackend == config.ProfileBackendMongo {
		mp, err := mongo.NewProfileStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init profile store: %w", err)
		}
		a.closers = append(a.closers, mp)
		profiles = mp
		logger.Info().Str("database", cfg.MongoDatabase).Str("collection", cfg.MongoCollection).Msg("mongo profile store connected")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}
	provider := auth.NewJWTProvider(jwtConfig, st)
	gateway := auth.NewGateway(provider, logger)
	resolver := identity.NewResolver(profiles, provider, logger)

	opts := []core.Option{core.WithMaxTextLength(cfg.MaxMessageLength)}
	if cfg.RedisAddr != "" {
		client, err := bus.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init bus: %w", err)
		}
		a.bus = bus.NewRedis(client, cfg.RedisChannelPrefix, logger)
		a.closers = append(a.closers, a.bus)
		if err := a.bus.Subscribe(ctx); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init bus: %w", err)
		}
		opts = append(opts, core.WithPublisher(a.bus))
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("redis broadcast bus enabled")
	}

	a.hub = core.NewHub(st, resolver, logger, opts...)
	a.server = transporthttp.NewServer(a.hub, gateway, st, cfg, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		return st, nil
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// WebSocket connections are hijacked, so Shutdown does not reach them; they end with runCtx.
	a.server.BaseContext = func(net.Listener) context.Context { return runCtx }

	eg, egCtx := errgroup.WithContext(runCtx)

	if a.bus != nil {
		eg.Go(func() error { return a.bus.Run(egCtx, a.hub) })
	}

	eg.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting educhat server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		a.log.Info().Msg("shutting down http server")

		shutdownCtx, stop := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer stop()
		err := a.server.Shutdown(shutdownCtx)
		cancel()
		a.hub.Wait()
		return err
	})

	return eg.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
	a.log.Info().Msg("resources closed")
}
