package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/alarming"
	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/logging"
	"github.com/smukkama/helmet-monitor/internal/queue"
	"github.com/smukkama/helmet-monitor/internal/watchdog"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "helmet-advisor")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	fmt.Println("Starting Advisor Service...")

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		logger.Fatal("failed to load timezone", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	fmt.Println("Connected to Redis")

	counters := alarming.NewCounterStore(redisClient)

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicAdvisories, 1, 1); err != nil {
		logger.Info("topic creation failed (may already exist)", zap.String("topic", cfg.Kafka.TopicAdvisories), zap.Error(err))
	}

	// Create advisory producer (for notifications)
	advisoryProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAdvisories)
	defer advisoryProducer.Close()
	fmt.Println("Advisory notification producer initialized")

	// The watchdog needs the evaluator and the evaluator arms the watchdog
	var evaluator *alarming.Evaluator
	offline := watchdog.New(func(personID string) {
		if err := evaluator.HandleOffline(ctx, personID); err != nil {
			logger.Error("failed to publish offline notification", zap.String("person_id", personID), zap.Error(err))
		}
	})
	evaluator = alarming.NewEvaluator(counters, advisoryProducer, offline, clk, logger)
	offline.Start()
	defer offline.Stop()

	// Create consumer for readings
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings, cfg.Kafka.AdvisorGroupID)
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	fmt.Println("\n✓ Advisor Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Start consuming and evaluating
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, msg, err := consumer.ConsumeReading(ctx)
			if errors.Is(err, queue.ErrDecode) {
				logger.Warn("failed to decode reading event", zap.Error(err))
				consumer.Commit(ctx, msg)
				continue
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return
				}
				logger.Warn("failed to consume message", zap.Error(err))
				continue
			}

			if err := evaluator.HandleReading(ctx, ev); err != nil {
				logger.Error("failed to evaluate reading",
					zap.String("event_id", ev.EventID),
					zap.String("person_id", ev.PersonID),
					zap.Error(err))
			}

			// Commit offset
			if err := consumer.Commit(ctx, msg); err != nil {
				logger.Warn("failed to commit offset", zap.Error(err))
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	cancel()
	<-done

	stats := consumer.Stats()
	logger.Info("advisor stopped",
		zap.Int64("messages", stats.Messages),
		zap.Int("pending_deadlines", offline.Pending()))
}
