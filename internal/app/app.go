package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/auth"
	"github.com/vovakirdan/presence-gateway/internal/config"
	"github.com/vovakirdan/presence-gateway/internal/core"
	"github.com/vovakirdan/presence-gateway/internal/metrics"
	"github.com/vovakirdan/presence-gateway/internal/service/conversations"
	"github.com/vovakirdan/presence-gateway/internal/service/messages"
	"github.com/vovakirdan/presence-gateway/internal/service/replies"
	"github.com/vovakirdan/presence-gateway/internal/service/users"
	"github.com/vovakirdan/presence-gateway/internal/store"
	"github.com/vovakirdan/presence-gateway/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/presence-gateway/internal/transport/http"
)

const tokenTTL = 24 * time.Hour

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	gateway         *core.Gateway
	messages        *messages.Service
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a, err := newWithStore(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func newWithStore(cfg *config.Config, st store.Store, logger *zerolog.Logger) (*App, error) {
	m := metrics.New()
	gateway := core.NewGateway(st, core.Options{
		GracePeriod:       cfg.GracePeriod,
		ReconcileInterval: cfg.ReconcileInterval,
		StoreTimeout:      cfg.StoreTimeout,
		Logger:            logger,
		Metrics:           m,
	})

	var replier messages.Replier
	if cfg.Replies.Enabled {
		gen, err := replies.NewOllamaGenerator(cfg.Replies.OllamaURL, cfg.Replies.Model, &stdhttp.Client{Timeout: cfg.Replies.Timeout})
		if err != nil {
			return nil, fmt.Errorf("init reply generator: %w", err)
		}
		replier = replies.NewBotReplier(st, gen, replies.Options{
			HistoryLimit: cfg.Replies.HistoryLimit,
			Generate: replies.GenerateOptions{
				MaxTokens:   cfg.Replies.MaxTokens,
				Temperature: cfg.Replies.Temperature,
			},
			Logger: logger,
		})
		logger.Info().Str("model", cfg.Replies.Model).Str("url", cfg.Replies.OllamaURL).Msg("bot replies enabled")
	}
	msgs := messages.NewService(st, gateway, replier, cfg.Replies.Timeout, logger)

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      tokenTTL,
	}
	if !jwtConfig.Enabled() {
		logger.Warn().Msg("jwt_secret is empty, accepting unauthenticated clients")
	}

	server := transporthttp.NewServer(transporthttp.Deps{
		Gateway:  gateway,
		Messages: msgs,
		Users:    users.NewService(st),
		Convs:    conversations.NewService(st),
		Metrics:  m,
		JWT:      jwtConfig,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		gateway:         gateway,
		messages:        msgs,
		store:           st,
		log:             logger,
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	gatewayCtx, stopGateway := context.WithCancel(ctx)
	gatewayDone := make(chan struct{})
	go func() {
		a.gateway.Run(gatewayCtx)
		close(gatewayDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopGateway()
		<-gatewayDone
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		stopGateway()
		<-gatewayDone
		a.cleanup()
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup waits for background replies and closes the store.
func (a *App) cleanup() {
	a.messages.Wait()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
