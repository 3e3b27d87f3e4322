package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/helmet-monitor/internal/reading"
)

// Ingestion sources
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// ReadingEvent is published to Kafka for every persisted reading
type ReadingEvent struct {
	EventID    string          `json:"event_id"`
	PersonID   string          `json:"person_id"`
	Source     string          `json:"source"`
	ReceivedAt time.Time       `json:"received_at"`
	Reading    reading.Reading `json:"reading"`
}

// NewReadingEvent wraps a stored reading
func NewReadingEvent(r reading.Reading, source string) *ReadingEvent {
	return &ReadingEvent{
		EventID:    uuid.NewString(),
		PersonID:   r.PersonID,
		Source:     source,
		ReceivedAt: r.Timestamp,
		Reading:    r,
	}
}

// AdvisoryItem is one advisory line carried by a notification
type AdvisoryItem struct {
	Severity  string `json:"severity"`
	Dimension string `json:"dimension"`
	Message   string `json:"message"`
}

// AdvisoryNotification is the message format for advisory notifications
type AdvisoryNotification struct {
	NotificationID string         `json:"notification_id"`
	Type           string         `json:"type"` // ADVISORY_RAISED, ADVISORY_CLEARED, PERSON_OFFLINE
	PersonID       string         `json:"person_id"`
	Severity       string         `json:"severity"`
	Advisories     []AdvisoryItem `json:"advisories,omitempty"`
	MQ7Count       int64          `json:"mq7_count"`
	MQ2Count       int64          `json:"mq2_count"`
	HarmfulCount   int64          `json:"harmful_count"`
	LastSeen       time.Time      `json:"last_seen"`
	CreatedAt      time.Time      `json:"created_at"`
}

const (
	NotificationRaised  = "ADVISORY_RAISED"
	NotificationCleared = "ADVISORY_CLEARED"
	NotificationOffline = "PERSON_OFFLINE"
)

// EncodeReadingEvent encodes a ReadingEvent to JSON
func EncodeReadingEvent(ev *ReadingEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeReadingEvent decodes JSON to ReadingEvent
func DecodeReadingEvent(data []byte) (*ReadingEvent, error) {
	var ev ReadingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// EncodeAdvisoryNotification encodes an AdvisoryNotification to JSON
func EncodeAdvisoryNotification(n *AdvisoryNotification) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeAdvisoryNotification decodes JSON to AdvisoryNotification
func DecodeAdvisoryNotification(data []byte) (*AdvisoryNotification, error) {
	var n AdvisoryNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
