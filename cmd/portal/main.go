// Command portal serves the veterinary clinic portal: tab sessions and role
// routing in front of the clinic REST API, plus the consultation chat relay.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/api"
	"github.com/vetclinic/portal/internal/api/handler"
	"github.com/vetclinic/portal/internal/api/metrics"
	"github.com/vetclinic/portal/internal/api/middleware"
	"github.com/vetclinic/portal/internal/core/service"
	"github.com/vetclinic/portal/internal/infrastructure/clinicapi"
	"github.com/vetclinic/portal/internal/infrastructure/config"
	mongostore "github.com/vetclinic/portal/internal/infrastructure/db/mongo"
	redisstore "github.com/vetclinic/portal/internal/infrastructure/db/redis"
	"github.com/vetclinic/portal/internal/infrastructure/memory"
	"github.com/vetclinic/portal/internal/infrastructure/queue"
	"github.com/vetclinic/portal/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.Init(logger.Options{})
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: !cfg.Production()})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("portal stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	mongoClient, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()
	if err := mongostore.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.ClinicAPI.Timeout}
	clinic, err := clinicapi.New(cfg.ClinicAPI.BaseURL, httpClient)
	if err != nil {
		return err
	}

	// --- Session core ---
	durable := redisstore.NewTokenTier(rdb, cfg.Session.DurableTTL)
	ephemeral := memory.NewTokenTier(cfg.Session.EphemeralTTL)
	sessionLog := logger.Named("session")

	registry := service.NewRegistry(func(tabID, deviceID string) *service.Session {
		tokens := service.NewTokenStore(durable, ephemeral, service.KeysFor(tabID, deviceID))
		return service.NewSession(clinic.Fork(), tokens, sessionLog.With().Str("tab_id", tabID).Logger())
	}, service.RegistryOptions{
		IdleTTL:  cfg.Session.IdleTTL,
		OnChange: metrics.ObserveSession,
	}, sessionLog)

	// --- Chat ---
	dedup := redisstore.NewMessageDeduper(rdb)
	dispatcher := queue.NewDispatcher(cfg.Chat.Workers, clinic, dedup, metrics.Dispatcher{}, logger.Named("chat-dispatcher"))
	chat := service.NewChatService(
		mongostore.NewChatRepository(db),
		dedup,
		dispatcher,
		logger.Named("chat"),
	)

	workers, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	dispatcher.Start(workers)
	go registry.Run(workers, cfg.Session.SweepInterval)
	go ephemeral.Run(workers, cfg.Session.SweepInterval)

	e := api.NewRouter(api.Deps{
		Log:            log,
		Registry:       registry,
		Chat:           chat,
		Conversations:  clinic,
		ClinicAPI:      clinic.BaseURL(),
		ProxyTransport: httpClient.Transport,
		Cookies: middleware.CookieOptions{
			Secure:       cfg.Cookie.Secure,
			Domain:       cfg.Cookie.Domain,
			DeviceMaxAge: cfg.Cookie.DeviceMaxAge,
		},
		HealthChecks: map[string]handler.DependencyCheck{
			"mongodb":    handler.MongoCheck(db),
			"redis":      handler.RedisCheck(rdb),
			"clinic_api": handler.HTTPCheck(httpClient, cfg.ClinicAPI.BaseURL),
		},
		LoginRatePerMin: cfg.Session.LoginRatePerMin,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("clinic_api", cfg.ClinicAPI.BaseURL).Msg("portal listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Handlers still running after a timed-out shutdown get ErrChatUnavailable
	// from Enqueue; what is already queued is delivered.
	dispatcher.Close()
	dispatcher.Wait()
	return nil
}
