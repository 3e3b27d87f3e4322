package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/auth"
	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/dashboard"
	"github.com/smukkama/helmet-monitor/internal/discovery"
	"github.com/smukkama/helmet-monitor/internal/ingest"
	"github.com/smukkama/helmet-monitor/internal/logging"
	"github.com/smukkama/helmet-monitor/internal/mqttingest"
	"github.com/smukkama/helmet-monitor/internal/queue"
	"github.com/smukkama/helmet-monitor/internal/server"
	"github.com/smukkama/helmet-monitor/internal/store"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "helmet-server")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	fmt.Println("Starting Helmet Server...")

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		logger.Fatal("failed to load timezone", zap.Error(err))
	}
	logger.Info("server clock ready", zap.String("timezone", clk.Location().String()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the reading store
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()
	fmt.Printf("Store opened (backend=%s)\n", cfg.Store.Backend)

	// Reading events are optional; without Kafka the advisor is simply not fed
	var publisher ingest.Publisher
	if cfg.Kafka.Enabled {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings, cfg.Kafka.NumPartitions, 1); err != nil {
			logger.Info("topic creation failed (may already exist)", zap.String("topic", cfg.Kafka.TopicReadings), zap.Error(err))
		}
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings)
		defer producer.Close()
		publisher = producer
		fmt.Printf("Kafka producer initialized (topic=%s)\n", cfg.Kafka.TopicReadings)
	}

	pipeline := ingest.NewPipeline(clk, st, publisher, logger)

	authenticator, err := auth.NewAuthenticator(cfg.Dashboard.User, cfg.Dashboard.Password, cfg.Dashboard.PasswordHash, logger)
	if err != nil {
		logger.Fatal("failed to configure dashboard auth", zap.Error(err))
	}
	dash := dashboard.NewService(st, clk, logger)

	httpServer := server.NewHTTPServer(&cfg.HTTP, pipeline, dash, authenticator, logger)
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}
	defer httpServer.Stop()

	if cfg.HTTP.Advertise {
		mqttTopic := ""
		if cfg.MQTT.Enabled() {
			mqttTopic = cfg.MQTT.Topic
		}
		advertiser, err := discovery.Start(cfg.HTTP.Port, mqttTopic, logger)
		if err != nil {
			logger.Warn("mDNS advertisement unavailable", zap.Error(err))
		} else {
			defer advertiser.Stop()
		}
	}

	if cfg.MQTT.Enabled() {
		subscriber := mqttingest.NewSubscriber(&cfg.MQTT, pipeline, logger)
		if err := subscriber.Start(ctx); err != nil {
			logger.Fatal("failed to start MQTT subscriber", zap.Error(err))
		}
		defer subscriber.Stop()
		fmt.Printf("MQTT subscriber started (topic=%s)\n", cfg.MQTT.Topic)
	}

	// Print statistics periodically
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				overview, err := dash.Overview(ctx)
				if err != nil {
					logger.Warn("failed to compute statistics", zap.Error(err))
					continue
				}
				logger.Info("server statistics",
					zap.Int("total_records", overview.TotalRecords),
					zap.Int("persons", overview.Persons),
					zap.Int("online", overview.Online))
			}
		}
	}()

	fmt.Println("\n✓ Helmet Server is running")
	fmt.Printf("✓ HTTP Server listening on port %d\n", cfg.HTTP.Port)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
