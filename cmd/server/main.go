package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	httpapi "github.com/peacelink/peacelink/internal/api/http"
	appEscrow "github.com/peacelink/peacelink/internal/application/escrow"
	"github.com/peacelink/peacelink/internal/application/expiry"
	appWallet "github.com/peacelink/peacelink/internal/application/wallet"
	"github.com/peacelink/peacelink/internal/config"
	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/wallet"
	"github.com/peacelink/peacelink/internal/infrastructure/metrics"
	"github.com/peacelink/peacelink/internal/infrastructure/otp"
	"github.com/peacelink/peacelink/internal/infrastructure/postgres"
	"github.com/peacelink/peacelink/internal/infrastructure/sms"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	walletRepo := postgres.NewWalletRepository(pool)
	peaceLinkRepo := postgres.NewPeaceLinkRepository(pool)
	disputeRepo := postgres.NewDisputeRepository(pool)

	// infrastructure
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	escrowMetrics := metrics.NewEscrow(registry)
	notifier := sms.NewLogSender(logger)
	otpCodec := otp.New()

	platformWalletID, err := ensurePlatformWallet(ctx, walletRepo, cfg.PlatformContact)
	if err != nil {
		log.Fatalf("platform wallet error: %v", err)
	}

	schedule := fees.DefaultSchedule()

	// services
	escrowSvc := appEscrow.NewService(
		peaceLinkRepo, peaceLinkRepo, walletRepo, disputeRepo,
		notifier, otpCodec, schedule, platformWalletID,
		cfg.ApprovalWindow, escrowMetrics, logger,
	)
	walletSvc := appWallet.NewService(walletRepo, schedule, platformWalletID, logger)
	sweeper := expiry.New(peaceLinkRepo, func(ctx context.Context, id uuid.UUID) error {
		_, err := escrowSvc.Expire(ctx, id)
		return err
	}, cfg.SweepInterval, logger)

	// API server
	apiServer := httpapi.NewServer(escrowSvc, walletSvc, registry)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweeper.Run(sweepCtx)

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopSweep()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

// ensurePlatformWallet creates the platform fee wallet on first boot and
// reuses it afterwards via the PLATFORM_WALLET_ID environment variable.
func ensurePlatformWallet(ctx context.Context, repo wallet.Repository, contact string) (uuid.UUID, error) {
	if raw := os.Getenv("PLATFORM_WALLET_ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, err
		}
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if existing != nil {
			return id, nil
		}
		w := wallet.New(wallet.RolePlatform, contact)
		w.ID = id
		return id, repo.Create(ctx, w)
	}
	w := wallet.New(wallet.RolePlatform, contact)
	return w.ID, repo.Create(ctx, w)
}
