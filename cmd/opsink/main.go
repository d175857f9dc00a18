// Command opsink consumes the inventory operation stream and ships each
// record as a structured log line.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/logx"
	"github.com/ariefcatur/go-order-ledger/internal/opqueue"
	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load("inventory-opsink", ":8085")
	log := logx.New(cfg.ServiceName, cfg.LogLevel, false)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := opqueue.LogSink{Log: log}
	workers := 4
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, opqueue.TopicOperations, workers, log)

	log.Info("opsink consumer started",
		zap.String("group", cfg.KafkaGroup),
		zap.String("topic", opqueue.TopicOperations),
		zap.Int("workers", workers),
	)
	err := cons.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
		op, err := kafkax.UnwrapPayload[opqueue.Operation](m.Value)
		if err != nil {
			// poison message: log and commit so the partition moves on
			log.Warn("undecodable operation",
				zap.Error(err),
				zap.ByteString("key", m.Key),
				zap.String("op_type", kafkax.Header(m, "x-op-type")),
			)
			return nil
		}
		return sink.Deliver(ctx, op)
	})
	if err != nil {
		log.Error("consumer exit", zap.Error(err))
	}
}
