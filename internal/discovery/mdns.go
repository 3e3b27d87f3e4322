// Package discovery advertises the ingestion endpoint over mDNS so helmets on
// the local network can find the server without a configured address.
package discovery

import (
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	ServiceType = "_helmet-monitor._tcp"
	Domain      = "local."

	maxLabelLen = 63
)

// Advertiser publishes one mDNS service record
type Advertiser struct {
	server *zeroconf.Server
	logger *zap.Logger
}

// Start registers the service for the HTTP port. mqttTopic is advertised
// when MQTT ingestion is enabled.
func Start(httpPort int, mqttTopic string, logger *zap.Logger) (*Advertiser, error) {
	if httpPort <= 0 {
		return nil, fmt.Errorf("invalid port %d", httpPort)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "helmet-monitor"
	}

	instance := InstanceName(fmt.Sprintf("Helmet Monitor (%s)", hostname))
	server, err := zeroconf.Register(instance, ServiceType, Domain, httpPort, TXTRecords(httpPort, mqttTopic), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logger.Info("mDNS advertisement started", zap.String("instance", instance), zap.Int("port", httpPort))
	return &Advertiser{server: server, logger: logger}, nil
}

// Stop withdraws the advertisement
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Info("mDNS advertisement stopped")
}

// TXTRecords describes where helmets should push readings
func TXTRecords(httpPort int, mqttTopic string) []string {
	txt := []string{
		fmt.Sprintf("http_port=%d", httpPort),
		"path=/data",
		"proto=v1",
	}
	if mqttTopic != "" {
		txt = append(txt, "mqtt_topic="+mqttTopic)
	}
	return txt
}

// InstanceName makes name safe for an mDNS instance label
func InstanceName(name string) string {
	replacer := strings.NewReplacer("\n", " ", "\r", " ", ".", " ", "_", " ")
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		cleaned = "Helmet Monitor"
	}
	if runes := []rune(cleaned); len(runes) > maxLabelLen {
		cleaned = string(runes[:maxLabelLen])
	}
	return cleaned
}
