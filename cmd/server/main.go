package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/entrypool/contest-service/internal/config"
	"github.com/entrypool/contest-service/internal/logger"
	"github.com/entrypool/contest-service/internal/model"
	"github.com/entrypool/contest-service/internal/repo"
	"github.com/entrypool/contest-service/internal/service"
	httptransport "github.com/entrypool/contest-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.WalletAccount{}, &model.LedgerEntry{}, &model.Reservation{},
		&model.ContestTemplate{}, &model.ContestInstance{}, &model.ContestEntry{},
		&model.ContestAudit{}, &model.PayoutRecord{}, &model.PaymentIntent{},
		&model.PaymentEvent{}, &model.IdempotencyKey{}, &model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, kw, cfg.Wallet.Currencies, log)
	reservations := service.NewReservationService(repository, log)
	svcs := httptransport.Services{
		Wallet:       service.NewWalletService(repository, cfg.Wallet.Currencies[0], log),
		Reservations: reservations,
		Lifecycle:    service.NewLifecycleService(repository, reservations, log),
		Webhooks:     service.NewWebhookService(repository, cfg.Webhook.Secret, log),
		Idempotency: service.NewIdempotencyStore(repository,
			time.Duration(cfg.Idempotency.InflightTTLSeconds)*time.Second,
			time.Duration(cfg.Idempotency.KeyTTLHours)*time.Hour, log),
	}

	// 7. gin router
	router := httptransport.NewRouter(svcs, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("contest-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
