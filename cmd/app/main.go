package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mergimg0/ttnts121-sub002/internal/booking"
	"github.com/mergimg0/ttnts121-sub002/internal/config"
	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/events"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/lock"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/obs"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
	"github.com/mergimg0/ttnts121-sub002/internal/server"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

var version = "dev"

// @title Bookings API
// @version 1.0
// @description Cancellation, transfer and balance payments for session bookings.
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting bookings service", "version", version)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := obs.InitTracer("bookings-api", version, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatalf("Failed to start tracing: %v", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	logger.Info("Store ready", "driver", cfg.StoreDriver)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis not reachable at startup", "addr", cfg.RedisAddr, "error", err.Error())
	}
	st.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	emailService := email.New(rdb, cfg.EmailFrom, cfg.EmailFromName, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	go emailService.Start(ctx)
	go watchQueue(ctx, emailService)

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitTopic)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rp.Close()
		publisher = rp
		logger.Info("Publishing events", "exchange", cfg.RabbitTopic)
	}

	omiseClient, err := payment.NewOmiseClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		logger.Fatalf("Failed to create payment client: %v", err)
	}
	gateway := payment.NewOmiseGateway(omiseClient, cfg.Currency, cfg.CheckoutSourceType)

	deps := booking.Deps{
		Bookings:   st.bookings,
		Sessions:   st.sessions,
		Gateway:    gateway,
		Ledger:     st.ledger,
		Notifier:   emailService,
		Events:     publisher,
		Locker:     lock.NewRedisLocker(rdb, cfg.LockTTL),
		Policy:     cfg.RefundPolicy,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		OpsEmail:   cfg.OpsEmail,
	}

	srv := server.New(cfg, server.Handlers{
		Bookings: booking.NewHandler(
			booking.NewCancellationService(deps),
			booking.NewTransferService(deps),
			booking.NewBalanceService(deps),
			booking.NewConfirmationService(deps),
			gateway,
		),
		Sessions: session.NewHandler(st.sessions),
		Refunds:  ledger.NewHandler(st.ledger),
	}, st.checks)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}
	cancel()

	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Errorf("Error flushing traces: %v", err)
	}
	_ = rdb.Close()
	st.close(shutdownCtx)

	logger.Info("Server stopped")
}

// watchQueue keeps the email queue gauge current.
func watchQueue(ctx context.Context, s *email.Service) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.QueueLength(ctx)
		}
	}
}
