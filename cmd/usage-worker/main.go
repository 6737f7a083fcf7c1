// Package main 生成用量落库入口（usage-worker）
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"z-genstudio-api/internal/application/usage"
	"z-genstudio-api/internal/config"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/infrastructure/messaging"
	"z-genstudio-api/internal/wire"
	"z-genstudio-api/pkg/logger"
	"z-genstudio-api/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "usage-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	dl, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize data layer", err)
	}
	defer cleanup()

	recorder := usage.NewRecorder(dl.UsageRepo)

	streamCfg := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(dl.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamGenerationSettled,
		Group:         messaging.ConsumerGroupUsageRecorder,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  streamCfg.BlockTimeout,
		ClaimInterval: streamCfg.ClaimInterval,
		RetryLimit:    streamCfg.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    streamCfg.RetryBackoff.Initial,
			Max:        streamCfg.RetryBackoff.Max,
			Multiplier: streamCfg.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MessageTypeGenerationSettled, func(mctx context.Context, msg *messaging.Message) error {
		var evt entity.GenerationUsageEvent
		if err := msg.UnmarshalPayload(&evt); err != nil {
			return err
		}
		if evt.MessageID == "" {
			evt.MessageID = msg.ID
		}

		err := recorder.Record(mctx, &evt)
		if errors.Is(err, usage.ErrInvalidEvent) {
			// 重试也不会变得合法
			logger.Warn(mctx, "dropping invalid usage event", "message_id", msg.ID, "error", err.Error())
			return nil
		}
		return err
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	log := logger.FromContext(ctx)
	log.Info("usage-worker started", "stream", string(messaging.StreamGenerationSettled))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("usage-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
