package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/giftcard-checkout/internal/giftcards"
	"github.com/richxcame/giftcard-checkout/internal/ledger"
	"github.com/richxcame/giftcard-checkout/internal/orders"
	"github.com/richxcame/giftcard-checkout/internal/sessions"
	"github.com/richxcame/giftcard-checkout/migrations"
	"github.com/richxcame/giftcard-checkout/pkg/common"
	"github.com/richxcame/giftcard-checkout/pkg/config"
	"github.com/richxcame/giftcard-checkout/pkg/database"
	"github.com/richxcame/giftcard-checkout/pkg/eventbus"
	"github.com/richxcame/giftcard-checkout/pkg/health"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"github.com/richxcame/giftcard-checkout/pkg/middleware"
	"github.com/richxcame/giftcard-checkout/pkg/ratelimit"
	"github.com/richxcame/giftcard-checkout/pkg/redis"
	"github.com/richxcame/giftcard-checkout/pkg/secrets"
	"github.com/richxcame/giftcard-checkout/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	serviceName    = "giftcards"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting gift card service",
		zap.String("version", serviceVersion),
		zap.String("environment", cfg.Server.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Server.Environment,
			Release:          serviceName + "@" + serviceVersion,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			logger.Warn("failed to initialize sentry", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, serviceName, cfg.Server.Environment)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	apiKey, err := ledgerAPIKey(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to resolve ledger API key", zap.Error(err))
	}

	db, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("connected to database")

	if cfg.Database.MigrateOnBoot {
		if err := database.Migrate(db, migrations.FS, "."); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := redis.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	bus, err := eventbus.Connect(eventbus.Config{
		URL:        cfg.NATS.URL,
		Name:       serviceName,
		StreamName: cfg.NATS.StreamName,
		Subjects:   []string{eventbus.SubjectOrderStatusChanged, eventbus.SubjectGiftCardMigration},
		MaxDeliver: cfg.NATS.MaxDeliver,
	})
	if err != nil {
		logger.Fatal("failed to connect to nats", zap.Error(err))
	}
	defer bus.Close()
	logger.Info("connected to nats", zap.String("stream", cfg.NATS.StreamName))

	settings := giftcards.Settings{
		Currency:                     cfg.Ledger.Currency,
		NoteLanguage:                 cfg.GiftCards.NoteLanguage,
		RefundTotalIncludesGiftCards: cfg.GiftCards.RefundTotalIncludesGiftCards,
		MigrationBatchSize:           cfg.GiftCards.MigrationBatchSize,
		MigrationBatchDelay:          cfg.GiftCards.MigrationBatchDelay,
	}

	ledgerClient := ledger.NewClient(cfg.Ledger, apiKey)
	orderRepo := orders.NewRepository(db)
	sessionStore := sessions.NewRedisStore(redisClient.Client, cfg.GiftCards.SessionTTL)

	manager := giftcards.NewManager(sessionStore, orderRepo)
	orderService := giftcards.NewOrderService(manager, ledgerClient, orderRepo, settings)
	migrator := giftcards.NewMigrator(orderRepo, orderRepo, ledgerClient, giftcards.NewBusJobQueue(bus, serviceName), settings)

	eventHandler := giftcards.NewEventHandler(orderService, migrator)
	if err := eventHandler.RegisterSubscriptions(ctx, bus); err != nil {
		logger.Fatal("failed to subscribe to events", zap.Error(err))
	}

	handler := giftcards.NewHandler(
		giftcards.NewCartService(manager, ledgerClient),
		orderService,
		giftcards.NewRefundService(manager, ledgerClient, orderRepo, settings),
		giftcards.NewReadService(manager),
		migrator,
	).WithCodeThrottle(middleware.RateLimit(ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)))

	checks := map[string]func() error{
		"database": health.DatabaseChecker(db),
		"redis":    health.RedisChecker(redisClient.Client),
		"nats":     health.NATSChecker(bus.Conn()),
	}
	router := newRouter(cfg, handler, checks)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("gift card service listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gift card service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}

	logger.Info("gift card service stopped")
}

// newRouter builds the gin engine with the middleware chain, health and metrics endpoints
func newRouter(cfg *config.Config, handler *giftcards.Handler, checks map[string]func() error) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	if cfg.Sentry.DSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics(serviceName))
	router.Use(middleware.SecurityHeaders())

	corsConfig := cors.DefaultConfig()
	if origins := splitOrigins(cfg.Server.CORSOrigins); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept-Language", giftcards.SessionHeader, "X-Correlation-ID"}
	router.Use(cors.New(corsConfig))

	if cfg.Server.RequestTimeout > 0 {
		router.Use(timeout.New(
			timeout.WithTimeout(time.Duration(cfg.Server.RequestTimeout)*time.Second),
			timeout.WithResponse(func(c *gin.Context) {
				common.ErrorResponse(c, http.StatusGatewayTimeout, "request timed out")
			}),
		))
	}

	router.GET("/healthz", common.HealthCheck(serviceName, serviceVersion))
	router.GET("/health/live", common.HealthCheck(serviceName, serviceVersion))
	router.GET("/health/ready", common.HealthCheckWithDeps(serviceName, serviceVersion, checks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router, cfg.JWT.Secret)
	return router
}

// ledgerAPIKey prefers the key from the environment and falls back to the secret store
func ledgerAPIKey(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.Ledger.APIKey != "" {
		return cfg.Ledger.APIKey, nil
	}

	manager, err := secrets.NewManager(ctx, secrets.Config{
		Provider:     secrets.ProviderType(cfg.Secrets.Provider),
		CacheTTL:     cfg.Secrets.CacheTTL,
		AuditEnabled: true,
		Vault: secrets.VaultConfig{
			Address:   cfg.Secrets.VaultAddr,
			Token:     cfg.Secrets.VaultToken,
			MountPath: cfg.Secrets.VaultMount,
		},
		AWS: secrets.AWSConfig{
			Region: cfg.Secrets.AWSRegion,
			Prefix: cfg.Secrets.AWSPrefix,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create secrets manager: %w", err)
	}
	defer manager.Close()

	ref, err := secrets.ParseReference("ledger-api-key", secrets.SecretLedgerAPIKey, cfg.Ledger.APIKeySecret)
	if err != nil {
		return "", fmt.Errorf("parse ledger api key reference: %w", err)
	}
	return manager.GetString(ctx, ref)
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
