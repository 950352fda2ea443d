package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carelink/carelink-api/config"
	"github.com/carelink/carelink-api/internal/email"
	"github.com/carelink/carelink-api/internal/handler"
	ingestHandler "github.com/carelink/carelink-api/internal/handler/ingest"
	notificationHandler "github.com/carelink/carelink-api/internal/handler/notification"
	"github.com/carelink/carelink-api/internal/middleware"
	"github.com/carelink/carelink-api/internal/repository/postgres"
	"github.com/carelink/carelink-api/internal/router"
	"github.com/carelink/carelink-api/internal/service/classifier"
	"github.com/carelink/carelink-api/internal/service/composer"
	"github.com/carelink/carelink-api/internal/service/dispatch"
	"github.com/carelink/carelink-api/internal/service/ingress"
	networkService "github.com/carelink/carelink-api/internal/service/network"
	notificationService "github.com/carelink/carelink-api/internal/service/notification"
	"github.com/carelink/carelink-api/pkg/crypto"
	"github.com/carelink/carelink-api/pkg/messaging/smsgw"
	"github.com/carelink/carelink-api/pkg/metrics"
	"github.com/carelink/carelink-api/pkg/phi"
	"github.com/carelink/carelink-api/pkg/secrets"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database.ToDatabaseConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	secretProvider, err := secrets.NewEnvProvider("CARELINK")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load secrets")
	}

	key, err := secrets.Keys(secretProvider).EncryptionKey()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch encryption key")
	}
	encryptor, err := crypto.NewCBCEncryptor(crypto.DeriveKey(key))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	appMetrics := metrics.NewMetrics("carelink", "api")

	phiStore, err := phi.NewRedisStore(cfg.PHI.ToStoreConfig(), appMetrics, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PHI store")
	}

	messenger, err := smsgw.NewClient(cfg.SMS.ToGatewayConfig(), secretProvider, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize SMS gateway client")
	}

	var emailSvc email.Service
	if cfg.SMTP.Enabled {
		emailSvc, err = email.NewService(cfg.SMTP.ToEmailConfig(), secretProvider, &log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize email service")
		}
	}

	// Repositories
	base := postgres.NewBaseRepository(db)
	notificationRepo := postgres.NewNotificationRepository(base)
	networkRepo := postgres.NewNetworkRepository(base)
	userRepo := postgres.NewUserRepository(base)
	historyRepo := postgres.NewSymptomHistoryRepository(base)

	// Services
	networkSvc := networkService.NewService(networkRepo)
	comp := composer.New(encryptor)
	dispatcher := dispatch.NewService(messenger, emailSvc, phiStore, appMetrics, &log.Logger)
	ingressSvc := ingress.NewService(ingress.Deps{
		Users:         userRepo,
		Networks:      networkSvc,
		NetworkRepo:   networkRepo,
		Notifications: notificationRepo,
		Classifier:    classifier.New(historyRepo),
		Composer:      comp,
		Dispatcher:    dispatcher,
		PHI:           phiStore,
		Metrics:       appMetrics,
		Logger:        &log.Logger,
	})
	notificationSvc := notificationService.NewService(notificationRepo, userRepo, networkSvc, comp, phiStore, &log.Logger)

	// HTTP surface
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	r := router.NewRouter(
		authMiddleware,
		notificationHandler.NewHandler(notificationSvc),
		ingestHandler.NewHandler(ingressSvc),
		handler.NewHandler(db),
		router.Config{
			RateLimit:     cfg.RateLimit.Limit(),
			RateBurst:     cfg.RateLimit.Burst,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "carelink_api",
			InternalToken: cfg.Auth.InternalToken,
		},
	)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
