package main

import (
	"context"
	"github.com/ariefcatur/storefront-payments/internal/config"
	kafkax "github.com/ariefcatur/storefront-payments/internal/kafka"
	"github.com/ariefcatur/storefront-payments/internal/logging"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/ariefcatur/storefront-payments/internal/redisx"
	"github.com/ariefcatur/storefront-payments/internal/stats"
	"github.com/joho/godotenv"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.ServiceName+"-stats", cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Error("redis", "err", err)
		os.Exit(1)
	}

	svc := &stats.Service{Redis: rdb, Name: cfg.StatsGroup, Log: log}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StatsGroup, orders.TopicPaymentSettled, cfg.StatsWorkers)
	log.Info("stats consumer started", "group", cfg.StatsGroup, "topic", orders.TopicPaymentSettled, "workers", cfg.StatsWorkers)
	if err := cons.Start(ctx, svc.HandlePaymentEvent); err != nil {
		log.Error("consumer exit", "err", err)
		os.Exit(1)
	}
	log.Info("stats consumer stopped")
}
