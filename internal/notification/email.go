package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/protocol"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

// sendFunc matches smtp.SendMail
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.SMTPConfig
	logger *zap.Logger
	send   sendFunc
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{config: cfg, logger: logger, send: smtp.SendMail}
}

var templates = template.Must(template.New("raised").Parse(`<html><body>
<h2>Helmet advisory: {{.PersonID}}</h2>
<p>Highest severity: <strong>{{.Severity}}</strong></p>
<ul>
{{range .Advisories}}<li><strong>{{.Severity}}</strong> ({{.Dimension}}): {{.Message}}</li>
{{end}}</ul>
<p>CO alerts: {{.MQ7Count}}, smoke alerts: {{.MQ2Count}}, harmful readings: {{.HarmfulCount}}</p>
<p>Last reading: {{.LastSeen.Format "2006-01-02 15:04:05 MST"}}</p>
<hr><p>Helmet Monitor Notification System</p>
</body></html>
`))

func init() {
	template.Must(templates.New("cleared").Parse(`<html><body>
<h2>Helmet advisory cleared: {{.PersonID}}</h2>
<p>All sensor readings for {{.PersonID}} are back within safe ranges.</p>
<p>Last reading: {{.LastSeen.Format "2006-01-02 15:04:05 MST"}}</p>
<hr><p>Helmet Monitor Notification System</p>
</body></html>
`))
	template.Must(templates.New("offline").Parse(`<html><body>
<h2>Helmet offline: {{.PersonID}}</h2>
<p>No reading has been received from {{.PersonID}} since {{.LastSeen.Format "2006-01-02 15:04:05 MST"}}.</p>
<p>Harmful readings so far: {{.HarmfulCount}}</p>
<hr><p>Helmet Monitor Notification System</p>
</body></html>
`))
}

// SendAdvisoryNotification sends an email for an advisory notification
func (e *EmailNotifier) SendAdvisoryNotification(n *protocol.AdvisoryNotification) error {
	subject, body, err := Render(n)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return e.sendEmail(subject, body)
}

// Render returns the subject and HTML body for a notification
func Render(n *protocol.AdvisoryNotification) (string, string, error) {
	var subject, name string
	switch n.Type {
	case protocol.NotificationRaised:
		subject = fmt.Sprintf("🚨 Helmet advisory (%s) - %s", n.Severity, n.PersonID)
		name = "raised"
	case protocol.NotificationCleared:
		subject = fmt.Sprintf("✅ Helmet advisory cleared - %s", n.PersonID)
		name = "cleared"
	case protocol.NotificationOffline:
		subject = fmt.Sprintf("⚠️ Helmet offline - %s", n.PersonID)
		name = "offline"
	default:
		return "", "", fmt.Errorf("unknown notification type: %s", n.Type)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, n); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if !e.Configured() {
		e.logger.Info("SMTP not configured, skipping email", zap.String("subject", subject))
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", e.config.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, []string{e.config.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("email sent", zap.String("subject", subject))
	return nil
}

// Configured reports whether SMTP credentials are present
func (e *EmailNotifier) Configured() bool {
	return e.config.Username != "" && e.config.Password != ""
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if !e.Configured() {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
