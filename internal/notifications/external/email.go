package external

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/notifications"
)

// EmailConfig holds configuration for email notifications.
type EmailConfig struct {
	SMTPHost    string          `json:"smtp_host"`
	SMTPPort    int             `json:"smtp_port"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	From        string          `json:"from"`
	To          []string        `json:"to"`
	MinSeverity domain.Severity `json:"min_severity,omitempty"`
}

// EmailNotifier sends AlertInstance notifications via email.
type EmailNotifier struct {
	config EmailConfig
}

func NewEmailNotifier(config EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: config}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) ShouldNotify(n notifications.Notification) bool {
	if e.config.MinSeverity != "" && severityBelow(n.Severity, e.config.MinSeverity) {
		return false
	}
	return true
}

func (e *EmailNotifier) Send(n notifications.Notification) error {
	if e.config.SMTPHost == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if e.config.From == "" {
		return fmt.Errorf("from address not configured")
	}
	if len(e.config.To) == 0 {
		return fmt.Errorf("no recipient addresses configured")
	}

	subject := e.buildSubject(n)
	body := e.buildBody(n)
	message := e.buildMessage(subject, body)

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	var auth smtp.Auth
	if e.config.Username != "" && e.config.Password != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, e.config.From, e.config.To, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (e *EmailNotifier) buildSubject(n notifications.Notification) string {
	prefix := ""
	switch n.Severity {
	case domain.SeverityCritical:
		prefix = "[CRITICAL] "
	case domain.SeverityHigh:
		prefix = "[HIGH] "
	}
	return fmt.Sprintf("%sfleetwatch %s Alert - %s", prefix, n.AlertType, n.AlertName)
}

func (e *EmailNotifier) buildBody(n notifications.Notification) string {
	var body strings.Builder
	body.WriteString("fleetwatch Alert Notification\n")
	body.WriteString("==============================\n\n")
	body.WriteString(fmt.Sprintf("Alert: %s\n", n.AlertName))
	body.WriteString(fmt.Sprintf("Type: %s\n", n.AlertType))
	body.WriteString(fmt.Sprintf("Severity: %s\n", n.Severity))
	if n.JobID != "" {
		body.WriteString(fmt.Sprintf("Job: %s\n", n.JobID))
	}
	if n.ServerName != "" {
		body.WriteString(fmt.Sprintf("Server: %s\n", n.ServerName))
	}
	body.WriteString(fmt.Sprintf("Triggered At: %s\n", n.TriggeredAt.Format("2006-01-02T15:04:05Z07:00")))
	body.WriteString(fmt.Sprintf("\nMessage: %s\n", n.Message))
	body.WriteString("\n--\n")
	body.WriteString("This is an automated notification from fleetwatch\n")
	return body.String()
}

func (e *EmailNotifier) buildMessage(subject, body string) string {
	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", e.config.From))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(e.config.To, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}
