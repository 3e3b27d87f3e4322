// Package queue carries reading events and advisory notifications over Kafka.
// Messages are keyed by person id so one person's events stay ordered on a
// single partition.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/helmet-monitor/internal/protocol"
)

// HeaderEventType names the payload carried by a message
const HeaderEventType = "event_type"

// Event types written to HeaderEventType
const (
	EventReading  = "reading"
	EventAdvisory = "advisory"
)

// ErrDecode is returned with the offending message when its payload cannot be
// decoded. Callers commit past it.
var ErrDecode = errors.New("malformed message payload")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// Producer publishes helmet events to one topic
type Producer struct {
	writer messageWriter
}

// NewProducer creates a producer that partitions by person id
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// PublishReading sends a persisted reading downstream
func (p *Producer) PublishReading(ctx context.Context, ev *protocol.ReadingEvent) error {
	msg, err := readingMessage(ev)
	if err != nil {
		return err
	}
	return p.write(ctx, msg)
}

// PublishAdvisory sends an advisory notification downstream
func (p *Producer) PublishAdvisory(ctx context.Context, n *protocol.AdvisoryNotification) error {
	msg, err := advisoryMessage(n)
	if err != nil {
		return err
	}
	return p.write(ctx, msg)
}

func (p *Producer) write(ctx context.Context, msg kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message for %s: %w", msg.Key, err)
	}
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

func readingMessage(ev *protocol.ReadingEvent) (kafka.Message, error) {
	value, err := protocol.EncodeReadingEvent(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode reading event: %w", err)
	}
	return newMessage(ev.PersonID, EventReading, value), nil
}

func advisoryMessage(n *protocol.AdvisoryNotification) (kafka.Message, error) {
	value, err := protocol.EncodeAdvisoryNotification(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode notification: %w", err)
	}
	return newMessage(n.PersonID, EventAdvisory, value), nil
}

func newMessage(personID, eventType string, value []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(personID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(eventType)},
		},
	}
}

// Consumer reads one topic in a consumer group with manual commits
type Consumer struct {
	reader messageReader
}

// NewConsumer creates a consumer with manual offset commits
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// ConsumeReading fetches and decodes the next reading event
func (c *Consumer) ConsumeReading(ctx context.Context) (*protocol.ReadingEvent, kafka.Message, error) {
	msg, err := c.fetch(ctx)
	if err != nil {
		return nil, msg, err
	}
	ev, err := protocol.DecodeReadingEvent(msg.Value)
	if err != nil {
		return nil, msg, fmt.Errorf("%w: offset %d: %v", ErrDecode, msg.Offset, err)
	}
	return ev, msg, nil
}

// ConsumeAdvisory fetches and decodes the next advisory notification
func (c *Consumer) ConsumeAdvisory(ctx context.Context) (*protocol.AdvisoryNotification, kafka.Message, error) {
	msg, err := c.fetch(ctx)
	if err != nil {
		return nil, msg, err
	}
	n, err := protocol.DecodeAdvisoryNotification(msg.Value)
	if err != nil {
		return nil, msg, fmt.Errorf("%w: offset %d: %v", ErrDecode, msg.Offset, err)
	}
	return n, msg, nil
}

func (c *Consumer) fetch(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

// Commit commits the message offset
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns consumer statistics
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// CreateTopic creates a topic through the cluster controller. An existing
// topic is reported as an error.
func CreateTopic(brokers []string, topic string, numPartitions int, replicationFactor int) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}

	return nil
}
