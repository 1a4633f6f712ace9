package main

import (
	"context"
	"flag"

	"github.com/redis/go-redis/v9"

	"pointsledger/internal/config"
	"pointsledger/internal/db"
	"pointsledger/internal/ledger"
	"pointsledger/internal/logger"
	"pointsledger/internal/program"
)

func main() {
	demoAccounts := flag.Int64("accounts", 5, "number of demo customer accounts to seed")
	migrationsPath := flag.String("migrations", "migrations", "path to the migration files")
	flag.Parse()

	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, *migrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	store := program.NewStore(database)
	configs := program.NewCachedStore(store, rdb, cfg.ConfigCacheTTL)

	programCfg, err := configs.Load(ctx)
	if err != nil {
		logger.Fatalf("Failed to load program config: %v", err)
	}

	if len(programCfg.TiersRaw) == 0 {
		programCfg.TiersRaw = map[string]any{
			"Bronze": float64(0),
			"Silver": map[string]any{"threshold": float64(5000), "multiplier": 1.1, "fixed_bonus": float64(10)},
			"Gold":   map[string]any{"threshold": float64(20000), "multiplier": 1.25, "fixed_bonus": float64(50)},
		}
		if err := configs.Save(ctx, programCfg); err != nil {
			logger.Fatalf("Failed to save demo tiers: %v", err)
		}
		logger.Info("Seeded demo tier configuration")
	}

	repo := ledger.NewRepository(database, cfg.LockTimeout)
	for customerID := int64(1); customerID <= *demoAccounts; customerID++ {
		if _, err := repo.GetOrCreateAccount(ctx, customerID); err != nil {
			logger.Fatalf("Failed to seed account %d: %v", customerID, err)
		}
	}
	logger.Infof("Seeded %d customer accounts", *demoAccounts)
}
