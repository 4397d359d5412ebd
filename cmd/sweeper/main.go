package main

import (
	"context"
	"fmt"
	"time"

	"github.com/entrypool/contest-service/internal/config"
	"github.com/entrypool/contest-service/internal/logger"
	"github.com/entrypool/contest-service/internal/repo"
	"github.com/entrypool/contest-service/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// The sweeper advances contest lifecycles on a fixed interval. Every
// transition is compare-and-set, so running more than one sweeper, or
// re-running after a crash, is safe.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	repository := repo.NewRepository(gdb, rdb, kw, cfg.Wallet.Currencies, log)
	reservations := service.NewReservationService(repository, log)
	lifecycle := service.NewLifecycleService(repository, reservations, log)

	interval := time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("contest-sweeper started, interval %s", interval)
	for range ticker.C {
		ctx := context.Background()
		if err := lifecycle.SweepOnce(ctx, time.Now()); err != nil {
			log.Errorf("sweep: %v", err)
		}
	}
}
