package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/logging"
	"github.com/smukkama/helmet-monitor/internal/notification"
	"github.com/smukkama/helmet-monitor/internal/queue"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "helmet-notification")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	fmt.Println("Starting Notification Service...")

	// Create email notifier
	notifier := notification.NewEmailNotifier(&cfg.SMTP, logger)

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		fmt.Printf("Note: %v (notifications will be logged only)\n", err)
	}

	// Create consumer for advisory notifications
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAdvisories, cfg.Kafka.NotifierGroupID)
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("\n✓ Notification Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Start consuming notifications
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			n, msg, err := consumer.ConsumeAdvisory(ctx)
			if errors.Is(err, queue.ErrDecode) {
				logger.Warn("failed to decode notification", zap.Error(err))
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

			// Send notification
			if err := notifier.SendAdvisoryNotification(n); err != nil {
				logger.Error("failed to send notification",
					zap.String("notification_id", n.NotificationID),
					zap.String("person_id", n.PersonID),
					zap.Error(err))
				// Don't commit on error - retry
				continue
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
}
