package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coursechat/coursechat-server/internal/auth"
	"github.com/coursechat/coursechat-server/internal/chat"
	"github.com/coursechat/coursechat-server/internal/config"
	"github.com/coursechat/coursechat-server/internal/hub"
	"github.com/coursechat/coursechat-server/internal/live"
	"github.com/coursechat/coursechat-server/internal/live/livekit"
	"github.com/coursechat/coursechat-server/internal/log"
	"github.com/coursechat/coursechat-server/internal/notify"
	"github.com/coursechat/coursechat-server/internal/presence"
	"github.com/coursechat/coursechat-server/internal/store"
	"github.com/coursechat/coursechat-server/internal/store/sqlite"
	transporthttp "github.com/coursechat/coursechat-server/internal/transport/http"
)

// App wires together the chat core, presence registry and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	registry        presence.Registry
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
// The sink argument lets callers plug a delivery backend for offline
// notifications; passing nil installs a log-only sink.
func New(cfg *config.Config, logger *zerolog.Logger, sink notify.Sink) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	if sink == nil {
		sink = notify.NewLogSink(log.Component(logger, "notify"))
	}

	var liveTok live.TokenProvider
	if cfg.LiveKit.Enabled {
		liveTok = livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.WSURL)
		logger.Info().Str("ws_url", cfg.LiveKit.WSURL).Msg("livekit token provider enabled")
	}

	authenticator := auth.NewAuthenticator(&auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	})

	chats := chat.NewService(st, log.Component(logger, "chat"))
	h := hub.NewHub(chats, registry, sink, liveTok, log.Component(logger, "hub"))
	server := transporthttp.NewServer(h, chats, authenticator, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		registry:        registry,
		log:             logger,
	}, nil
}

func newRegistry(cfg *config.Config, logger *zerolog.Logger) (presence.Registry, error) {
	switch cfg.Presence.Backend {
	case "", "memory":
		return presence.NewMemoryRegistry(cfg.Presence.GraceWindow), nil
	case "redis":
		registry, err := presence.NewRedisRegistry(cfg.Presence.RedisAddr, cfg.Presence.GraceWindow)
		if err != nil {
			return nil, fmt.Errorf("init redis presence: %w", err)
		}
		logger.Info().Str("addr", cfg.Presence.RedisAddr).Msg("redis presence registry connected")
		return registry, nil
	default:
		return nil, fmt.Errorf("unknown presence backend %q", cfg.Presence.Backend)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.cleanup()
	return err
}

// cleanup closes the store, presence registry and other resources.
func (a *App) cleanup() {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence registry")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
