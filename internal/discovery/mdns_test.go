package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "Helmet Monitor (site a local)", InstanceName("Helmet Monitor (site_a.local)"))
	assert.Equal(t, "Helmet Monitor", InstanceName("  \n "))
	assert.Len(t, []rune(InstanceName(strings.Repeat("x", 100))), maxLabelLen)
}

func TestTXTRecords(t *testing.T) {
	assert.Equal(t, []string{"http_port=5000", "path=/data", "proto=v1"}, TXTRecords(5000, ""))
	assert.Contains(t, TXTRecords(5000, "helmets/+/telemetry"), "mqtt_topic=helmets/+/telemetry")
}

func TestStart_InvalidPort(t *testing.T) {
	_, err := Start(0, "", zap.NewNop())
	assert.Error(t, err)
}

func TestStop_NilAdvertiser(t *testing.T) {
	var a *Advertiser
	a.Stop()
}
