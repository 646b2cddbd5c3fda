package external

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

func TestEmailNotifier_Name(t *testing.T) {
	notifier := NewEmailNotifier(EmailConfig{})
	if notifier.Name() != "email" {
		t.Errorf("expected name 'email', got '%s'", notifier.Name())
	}
}

func TestEmailNotifier_ShouldNotify(t *testing.T) {
	tests := []struct {
		name     string
		config   EmailConfig
		severity domain.Severity
		expected bool
	}{
		{
			name:     "no filter - should notify",
			config:   EmailConfig{},
			severity: domain.SeverityLow,
			expected: true,
		},
		{
			name:     "severity filter - too low",
			config:   EmailConfig{MinSeverity: domain.SeverityHigh},
			severity: domain.SeverityMedium,
			expected: false,
		},
		{
			name:     "severity filter - matches",
			config:   EmailConfig{MinSeverity: domain.SeverityHigh},
			severity: domain.SeverityHigh,
			expected: true,
		},
		{
			name:     "severity filter - exceeds",
			config:   EmailConfig{MinSeverity: domain.SeverityHigh},
			severity: domain.SeverityCritical,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := NewEmailNotifier(tt.config)
			result := notifier.ShouldNotify(testNotification(tt.severity))
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEmailNotifier_buildSubject(t *testing.T) {
	tests := []struct {
		name     string
		severity domain.Severity
		prefix   string
	}{
		{name: "critical severity", severity: domain.SeverityCritical, prefix: "[CRITICAL] "},
		{name: "high severity", severity: domain.SeverityHigh, prefix: "[HIGH] "},
		{name: "medium severity", severity: domain.SeverityMedium, prefix: ""},
		{name: "low severity", severity: domain.SeverityLow, prefix: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := NewEmailNotifier(EmailConfig{})
			subject := notifier.buildSubject(testNotification(tt.severity))
			want := tt.prefix + "fleetwatch " + string(domain.AlertPerformanceWarning) + " Alert - disk usage high"
			if subject != want {
				t.Errorf("expected subject '%s', got '%s'", want, subject)
			}
		})
	}
}

func TestEmailNotifier_buildBody(t *testing.T) {
	n := testNotification(domain.SeverityCritical)
	n.JobID = "nightly-backup"
	n.ServerName = "db-02"

	notifier := NewEmailNotifier(EmailConfig{})
	body := notifier.buildBody(n)

	requiredStrings := []string{
		"fleetwatch Alert Notification",
		"Alert: disk usage high",
		"Type: PerformanceWarning",
		"Severity: Critical",
		"Job: nightly-backup",
		"Server: db-02",
		"Message: disk usage above threshold",
		"automated notification from fleetwatch",
	}

	for _, required := range requiredStrings {
		if !strings.Contains(body, required) {
			t.Errorf("body missing required string: %s", required)
		}
	}
}

func TestEmailNotifier_buildMessage(t *testing.T) {
	notifier := NewEmailNotifier(EmailConfig{
		From: "sender@example.com",
		To:   []string{"recipient1@example.com", "recipient2@example.com"},
	})

	message := notifier.buildMessage("Test Subject", "Test Body")

	requiredHeaders := []string{
		"From: sender@example.com",
		"To: recipient1@example.com, recipient2@example.com",
		"Subject: Test Subject",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
	}

	for _, header := range requiredHeaders {
		if !strings.Contains(message, header) {
			t.Errorf("message missing required header: %s", header)
		}
	}

	if !strings.Contains(message, "Test Body") {
		t.Error("message missing body content")
	}
}

func TestEmailNotifier_Send_MissingConfig(t *testing.T) {
	tests := []struct {
		name   string
		config EmailConfig
	}{
		{
			name: "missing SMTP host",
			config: EmailConfig{
				From: "test@example.com",
				To:   []string{"recipient@example.com"},
			},
		},
		{
			name: "missing from address",
			config: EmailConfig{
				SMTPHost: "smtp.example.com",
				SMTPPort: 25,
				To:       []string{"recipient@example.com"},
			},
		},
		{
			name: "missing recipients",
			config: EmailConfig{
				SMTPHost: "smtp.example.com",
				SMTPPort: 25,
				From:     "test@example.com",
				To:       []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := NewEmailNotifier(tt.config)
			err := notifier.Send(testNotification(domain.SeverityLow))
			if err == nil {
				t.Error("expected error for missing config")
			}
		})
	}
}

func TestEmailNotifier_Send(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start mock SMTP server: %v", err)
	}
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port

	messageChan := make(chan string, 1)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		writer := bufio.NewWriter(conn)

		writer.WriteString("220 localhost SMTP Mock\r\n")
		writer.Flush()

		var messageData strings.Builder
		inData := false

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}

			if inData {
				if strings.TrimSpace(line) == "." {
					messageChan <- messageData.String()
					writer.WriteString("250 OK\r\n")
					writer.Flush()
					inData = false
				} else {
					messageData.WriteString(line)
				}
				continue
			}

			if strings.HasPrefix(line, "HELO") || strings.HasPrefix(line, "EHLO") {
				writer.WriteString("250 Hello\r\n")
			} else if strings.HasPrefix(line, "MAIL FROM:") {
				writer.WriteString("250 OK\r\n")
			} else if strings.HasPrefix(line, "RCPT TO:") {
				writer.WriteString("250 OK\r\n")
			} else if strings.HasPrefix(line, "DATA") {
				writer.WriteString("354 Start mail input\r\n")
				inData = true
			} else if strings.HasPrefix(line, "QUIT") {
				writer.WriteString("221 Bye\r\n")
				writer.Flush()
				break
			}
			writer.Flush()
		}
	}()

	notifier := NewEmailNotifier(EmailConfig{
		SMTPHost: "127.0.0.1",
		SMTPPort: port,
		From:     "sender@example.com",
		To:       []string{"recipient@example.com"},
	})

	n := testNotification(domain.SeverityCritical)
	n.TriggeredAt = time.Now()

	if err := notifier.Send(n); err != nil {
		t.Fatalf("failed to send email: %v", err)
	}

	select {
	case message := <-messageChan:
		if !strings.Contains(message, "From: sender@example.com") {
			t.Error("message missing From header")
		}
		if !strings.Contains(message, "To: recipient@example.com") {
			t.Error("message missing To header")
		}
		if !strings.Contains(message, "[CRITICAL]") {
			t.Error("message missing CRITICAL prefix in subject")
		}
		if !strings.Contains(message, "disk usage high") {
			t.Error("message missing alert name")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for email")
	}
}

func TestEmailNotifier_ConfigStored(t *testing.T) {
	config := EmailConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		Username: "testuser",
		Password: "testpass",
		From:     "sender@example.com",
		To:       []string{"recipient@example.com"},
	}

	notifier := NewEmailNotifier(config)
	if notifier.config.Username != "testuser" {
		t.Error("username not stored correctly")
	}
	if notifier.config.Password != "testpass" {
		t.Error("password not stored correctly")
	}
}
