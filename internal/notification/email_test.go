package notification

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/protocol"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

func raisedNotification() *protocol.AdvisoryNotification {
	return &protocol.AdvisoryNotification{
		Type:     protocol.NotificationRaised,
		PersonID: "H-01",
		Severity: "error",
		Advisories: []protocol.AdvisoryItem{
			{Severity: "error", Dimension: "co", Message: "Urgent: elevated carbon monoxide"},
			{Severity: "warning", Dimension: "temperature", Message: "Warning: high <temperature>"},
		},
		MQ7Count:     6,
		HarmfulCount: 6,
		LastSeen:     time.Date(2026, 10, 19, 10, 15, 0, 0, time.UTC),
	}
}

func TestRender_Raised(t *testing.T) {
	subject, body, err := Render(raisedNotification())
	require.NoError(t, err)

	assert.Contains(t, subject, "H-01")
	assert.Contains(t, subject, "error")
	assert.Contains(t, body, "Urgent: elevated carbon monoxide")
	assert.Contains(t, body, "high &lt;temperature&gt;")
	assert.Contains(t, body, "CO alerts: 6")
	assert.Contains(t, body, "2026-10-19 10:15:00 UTC")
}

func TestRender_ClearedAndOffline(t *testing.T) {
	n := raisedNotification()

	n.Type = protocol.NotificationCleared
	subject, body, err := Render(n)
	require.NoError(t, err)
	assert.Contains(t, subject, "cleared")
	assert.Contains(t, body, "back within safe ranges")

	n.Type = protocol.NotificationOffline
	subject, body, err = Render(n)
	require.NoError(t, err)
	assert.Contains(t, subject, "offline")
	assert.Contains(t, body, "No reading has been received from H-01")
}

func TestRender_UnknownType(t *testing.T) {
	n := raisedNotification()
	n.Type = "SOMETHING_ELSE"

	_, _, err := Render(n)
	assert.Error(t, err)
}

func TestSend_SkipsWithoutCredentials(t *testing.T) {
	e := NewEmailNotifier(&config.SMTPConfig{Host: "localhost", Port: 25}, zap.NewNop())
	e.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called without credentials")
		return nil
	}

	assert.NoError(t, e.SendAdvisoryNotification(raisedNotification()))
	assert.Error(t, e.TestConnection())
}

func TestSend_BuildsHTMLMessage(t *testing.T) {
	cfg := &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "alerts",
		Password: "secret",
		From:     "alerts@example.com",
		To:       "safety@example.com",
	}
	e := NewEmailNotifier(cfg, zap.NewNop())

	var gotAddr string
	var gotTo []string
	var gotMsg string
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, e.SendAdvisoryNotification(raisedNotification()))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"safety@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: alerts@example.com\r\n"))
	assert.Contains(t, gotMsg, "Content-Type: text/html")
}

func TestSend_PropagatesFailure(t *testing.T) {
	cfg := &config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"}
	e := NewEmailNotifier(cfg, zap.NewNop())
	e.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	assert.Error(t, e.SendAdvisoryNotification(raisedNotification()))
}
