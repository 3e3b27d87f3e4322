package mqttingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/ingest"
	"github.com/smukkama/helmet-monitor/internal/store"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newSubscriber(t *testing.T) (*Subscriber, store.Store, *observer.ObservedLogs) {
	t.Helper()
	fs, err := store.OpenFile(filepath.Join(t.TempDir(), "data.json"), zap.NewNop())
	require.NoError(t, err)
	st := store.Serialize(fs)

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	pipeline := ingest.NewPipeline(clock.Fixed{T: time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)}, st, nil, logger)
	cfg := &config.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "test", Topic: "helmets/+/telemetry"}
	return NewSubscriber(cfg, pipeline, logger), st, logs
}

func TestHandleMessage_IngestsReading(t *testing.T) {
	s, st, _ := newSubscriber(t)

	s.HandleMessage(nil, fakeMessage{topic: "helmets/H-01/telemetry", payload: []byte(`{"person_id":"H-01","mq2":1}`)})

	readings, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "H-01", readings[0].PersonID)
	assert.True(t, readings[0].MQ2.Set())
}

func TestHandleMessage_DropsInvalidPayload(t *testing.T) {
	s, st, logs := newSubscriber(t)

	s.HandleMessage(nil, fakeMessage{topic: "helmets/H-01/telemetry", payload: []byte(`{"mq2":1}`)})
	s.HandleMessage(nil, fakeMessage{topic: "helmets/H-01/telemetry", payload: []byte(`garbage`)})

	readings, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
	assert.Equal(t, 2, logs.FilterMessage("MQTT message rejected").Len())
}

func TestStop_WithoutStart(t *testing.T) {
	s, _, _ := newSubscriber(t)
	s.Stop()
}
