package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	"github.com/ariefcatur/go-order-ledger/internal/httpx"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/logx"
	"github.com/ariefcatur/go-order-ledger/internal/observability"
	"github.com/ariefcatur/go-order-ledger/internal/opqueue"
	"github.com/ariefcatur/go-order-ledger/internal/postgres"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load("inventory-service", ":8082")
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
	if err := postgres.EnsureSchema(ctx, db, postgres.InventorySchema); err != nil {
		log.Fatal("schema", zap.Error(err))
	}

	// Operation stream: queue -> log + kafka. The producer outlives the
	// queue drain so the final flush can still publish.
	prodCtx, stopProd := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, opqueue.TopicOperations, 1024, log)
	prod.Start(prodCtx)
	q := opqueue.New(cfg.OpQueueCapacity, log)
	sink := opqueue.MultiSink{opqueue.LogSink{Log: log}, opqueue.KafkaSink{Producer: prod}}

	ledger := inventory.NewLedger(&inventory.PGStore{DB: db}, q, log, cfg.WarningThreshold)
	router := httpx.NewRouter(log)
	(&httpx.InventoryHandler{Ledger: ledger, Queue: q, Log: log}).Register(router)
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
		err := srv.Shutdown(sctx)
		q.Close() // no more ledger writes; drain what is left
		return err
	})
	g.Go(func() error {
		return q.Run(context.WithoutCancel(gctx), sink)
	})
	if err := g.Wait(); err != nil {
		log.Error("service exit", zap.Error(err))
	}

	stopProd()
	prod.WaitClosed()
	st := q.Stats()
	log.Info("operation queue drained",
		zap.Uint64("delivered", st.Delivered),
		zap.Uint64("failed", st.Failed),
		zap.Uint64("dropped", st.Dropped),
	)

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTelemetry(sctx); err != nil {
		log.Warn("telemetry shutdown", zap.Error(err))
	}
}
