package main

import (
	"context"
	"fmt"

	"github.com/mergimg0/ttnts121-sub002/internal/booking"
	"github.com/mergimg0/ttnts121-sub002/internal/config"
	"github.com/mergimg0/ttnts121-sub002/internal/db"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/server"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

type stores struct {
	bookings booking.Repository
	sessions session.Repository
	ledger   ledger.Repository
	checks   map[string]server.HealthCheck
	close    func(context.Context)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &stores{
			bookings: booking.NewMongoRepository(client, database),
			sessions: session.NewMongoRepository(database),
			ledger:   ledger.NewMongoRepository(database),
			checks: map[string]server.HealthCheck{
				"mongo": func(ctx context.Context) error { return client.Ping(ctx, nil) },
			},
			close: func(ctx context.Context) {
				if err := client.Disconnect(ctx); err != nil {
					logger.Error("mongo disconnect failed", "error", err.Error())
				}
			},
		}, nil

	case "postgres":
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &stores{
			bookings: booking.NewRepository(database),
			sessions: session.NewRepository(database),
			ledger:   ledger.NewRepository(database),
			checks: map[string]server.HealthCheck{
				"postgres": database.PingContext,
			},
			close: func(context.Context) { database.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
