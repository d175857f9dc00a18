package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	"github.com/ariefcatur/go-order-ledger/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/logx"
	"github.com/ariefcatur/go-order-ledger/internal/observability"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/postgres"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
	"github.com/ariefcatur/go-order-ledger/internal/upstream"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load("order-service", ":8081")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, otelErr := observability.Setup(ctx, cfg.ServiceName, cfg.OtelEndpoint, cfg.OtelAuthHeader)
	log := logx.New(cfg.ServiceName, cfg.LogLevel, cfg.OtelEndpoint != "" && otelErr == nil)
	defer func() { _ = log.Sync() }()
	if otelErr != nil {
		log.Warn("telemetry export disabled", zap.Error(otelErr))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db, postgres.OrdersSchema); err != nil {
		log.Fatal("schema", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer; topic per event type
	prodCtx, stopProd := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, "", 1024, log)
	prod.Start(prodCtx)

	svc := orders.NewService(
		&orders.PGRepo{DB: db},
		&upstream.InventoryClient{C: upstream.NewClient(cfg.InventoryURL, cfg.RPCTimeout), Log: log},
		&upstream.CatalogClient{C: upstream.NewClient(cfg.ProductURL, cfg.RPCTimeout)},
		&upstream.AddressClient{C: upstream.NewClient(cfg.UserURL, cfg.RPCTimeout)},
		log,
	)
	svc.RPCTimeout = cfg.RPCTimeout
	svc.Cache = &redisx.Cache{RDB: rdb, Log: log}
	svc.Events = &orders.KafkaPublisher{Producer: prod, Source: cfg.ServiceName, Log: log}

	router := httpx.NewRouter(log)
	(&httpx.OrdersHandler{Svc: svc, Log: log}).Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpx.Traced(router, cfg.ServiceName)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error("service exit", zap.Error(err))
	}

	stopProd()        // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTelemetry(sctx); err != nil {
		log.Warn("telemetry shutdown", zap.Error(err))
	}
}
