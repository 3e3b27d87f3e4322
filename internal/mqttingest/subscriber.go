// Package mqttingest feeds helmet readings published over MQTT into the
// ingestion pipeline.
package mqttingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/protocol"
	"github.com/smukkama/helmet-monitor/internal/reading"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

const (
	connectTimeout  = 10 * time.Second
	disconnectQuiet = 250 // ms
)

// Ingester is the shared validate-and-store path
type Ingester interface {
	Ingest(ctx context.Context, payload []byte, source string) (reading.Reading, error)
}

// Subscriber consumes telemetry messages from one topic filter
type Subscriber struct {
	config   *config.MQTTConfig
	ingester Ingester
	logger   *zap.Logger
	client   mqtt.Client
	ctx      context.Context
}

// NewSubscriber creates a subscriber; call Start to connect
func NewSubscriber(cfg *config.MQTTConfig, ingester Ingester, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		config:   cfg,
		ingester: ingester,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start connects to the broker and subscribes. Messages are ingested with
// ctx until Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx

	opts := mqtt.NewClientOptions().
		AddBroker(s.config.Broker).
		SetClientID(s.config.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Resubscribe after every (re)connect
			if token := c.Subscribe(s.config.Topic, 1, s.HandleMessage); token.Wait() && token.Error() != nil {
				s.logger.Error("MQTT subscribe failed", zap.String("topic", s.config.Topic), zap.Error(token.Error()))
				return
			}
			s.logger.Info("subscribed to MQTT topic", zap.String("topic", s.config.Topic))
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			s.logger.Warn("MQTT connection lost", zap.Error(err))
		})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("failed to connect to MQTT broker %s: timeout", s.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.config.Broker, err)
	}

	s.logger.Info("connected to MQTT broker", zap.String("broker", s.config.Broker))
	return nil
}

// Stop unsubscribes and disconnects
func (s *Subscriber) Stop() {
	if s.client == nil || !s.client.IsConnected() {
		return
	}
	s.client.Unsubscribe(s.config.Topic).WaitTimeout(time.Second)
	s.client.Disconnect(disconnectQuiet)
	s.logger.Info("MQTT subscriber stopped")
}

// HandleMessage ingests one telemetry message. Rejected messages are logged
// and dropped.
func (s *Subscriber) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	r, err := s.ingester.Ingest(s.ctx, msg.Payload(), protocol.SourceMQTT)
	switch {
	case err == nil:
		s.logger.Debug("MQTT reading saved",
			zap.String("topic", msg.Topic()),
			zap.String("person_id", r.PersonID))
	case errors.Is(err, reading.ErrNoData), errors.Is(err, reading.ErrMissingIdentifier):
		s.logger.Warn("MQTT message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
	default:
		s.logger.Error("failed to save MQTT reading", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}
