package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/storefront-payments/internal/config"
	"github.com/ariefcatur/storefront-payments/internal/httpx"
	kafkax "github.com/ariefcatur/storefront-payments/internal/kafka"
	"github.com/ariefcatur/storefront-payments/internal/logging"
	"github.com/ariefcatur/storefront-payments/internal/mongostore"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/ariefcatur/storefront-payments/internal/payment"
	"github.com/ariefcatur/storefront-payments/internal/postgres"
	"github.com/ariefcatur/storefront-payments/internal/redisx"
	"github.com/ariefcatur/storefront-payments/internal/stats"
	"github.com/ariefcatur/storefront-payments/internal/tracing"
	"github.com/ariefcatur/storefront-payments/internal/webpay"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type store interface {
	payment.OrderStore
	httpx.CartStore
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)
	if len(cfg.JWTSecret) == 0 {
		log.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Setup(cfg.ServiceName, cfg.TracesExporter, os.Stdout)
	if err != nil {
		log.Error("tracing", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Order + cart store
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("store", "kind", cfg.OrderStore, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Warn("redis unavailable, order cache will miss", "err", err)
	}

	// Kafka producers
	initiated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentInitiated, 1024)
	initiated.Start()
	settled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentSettled, 1024)
	settled.Start()

	gw := webpay.NewClient(cfg.Webpay, cfg.WebpayTimeout)
	svc := &payment.Service{
		Gateway:     gw,
		Orders:      st,
		Cache:       redisx.NewOrderCache(rdb),
		Initiated:   initiated,
		Settled:     settled,
		ReturnURL:   cfg.ReturnURL(),
		ServiceName: cfg.ServiceName,
		Log:         log,
	}

	router := httpx.NewRouter(gw.Environment(), httpx.NewMetrics(cfg.ServiceName), cfg.RequestTimeout())
	httpx.Mount(router, &httpx.Auth{Secret: []byte(cfg.JWTSecret)},
		&httpx.PaymentHandler{
			Service: svc,
			Limiter: httpx.NewLimiter(cfg.RateRPS, cfg.RateBurst),
			Timeout: cfg.PaymentTimeout(),
		},
		&httpx.OrdersHandler{Orders: svc},
		&httpx.CartHandler{Store: st},
		&httpx.StatsHandler{Sales: &stats.Service{Redis: rdb, Name: cfg.StatsGroup, Log: log}},
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "webpay_env", gw.Environment(), "store", cfg.OrderStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	initiated.Close()
	settled.Close()
	initiated.WaitClosed()
	settled.WaitClosed()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.OrderStore {
	case config.StoreMongo:
		db, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		s := mongostore.New(db)
		if err := s.CreateIndexes(connectCtx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, nil, err
		}
		return s, func() { _ = db.Client().Disconnect(context.Background()) }, nil
	default:
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			return nil, nil, err
		}
		pool, err := postgres.Connect(connectCtx, cfg.PostgresDSN, 16)
		if err != nil {
			return nil, nil, err
		}
		return pgStore{Repo: &orders.Repo{DB: pool}, CartRepo: &orders.CartRepo{DB: pool}}, pool.Close, nil
	}
}

// pgStore joins the Postgres order and cart repos behind one value.
type pgStore struct {
	*orders.Repo
	*orders.CartRepo
}
