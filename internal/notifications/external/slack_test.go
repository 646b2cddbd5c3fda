package external

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/notifications"
)

func testNotification(severity domain.Severity) notifications.Notification {
	return notifications.Notification{
		AlertID:     1,
		InstanceID:  1,
		AlertName:   "disk usage high",
		AlertType:   domain.AlertPerformanceWarning,
		Severity:    severity,
		Message:     "disk usage above threshold",
		TriggeredAt: time.Unix(0, 0),
	}
}

func TestSlackNotifier_Name(t *testing.T) {
	notifier := NewSlackNotifier(SlackConfig{})
	if notifier.Name() != "slack" {
		t.Errorf("expected name 'slack', got '%s'", notifier.Name())
	}
}

func TestSlackNotifier_ShouldNotify(t *testing.T) {
	tests := []struct {
		name     string
		config   SlackConfig
		n        notifications.Notification
		expected bool
	}{
		{
			name:     "no filter - should notify",
			config:   SlackConfig{},
			n:        testNotification(domain.SeverityLow),
			expected: true,
		},
		{
			name:     "severity filter - notification too low",
			config:   SlackConfig{MinSeverity: domain.SeverityHigh},
			n:        testNotification(domain.SeverityMedium),
			expected: false,
		},
		{
			name:     "severity filter - notification matches",
			config:   SlackConfig{MinSeverity: domain.SeverityHigh},
			n:        testNotification(domain.SeverityHigh),
			expected: true,
		},
		{
			name:     "severity filter - notification exceeds",
			config:   SlackConfig{MinSeverity: domain.SeverityHigh},
			n:        testNotification(domain.SeverityCritical),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := NewSlackNotifier(tt.config)
			result := notifier.ShouldNotify(tt.n)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	tests := []struct {
		name            string
		config          SlackConfig
		n               notifications.Notification
		validatePayload func(t *testing.T, payload map[string]interface{})
	}{
		{
			name: "basic notification",
			config: SlackConfig{
				Channel:   "#alerts",
				Username:  "fleetwatch",
				IconEmoji: ":robot_face:",
			},
			n: func() notifications.Notification {
				n := testNotification(domain.SeverityLow)
				n.JobID = "nightly-backup"
				return n
			}(),
			validatePayload: func(t *testing.T, payload map[string]interface{}) {
				if payload["channel"] != "#alerts" {
					t.Errorf("expected channel '#alerts', got '%v'", payload["channel"])
				}
				if payload["username"] != "fleetwatch" {
					t.Errorf("expected username 'fleetwatch', got '%v'", payload["username"])
				}
				if payload["icon_emoji"] != ":robot_face:" {
					t.Errorf("expected icon_emoji ':robot_face:', got '%v'", payload["icon_emoji"])
				}
				attachments, ok := payload["attachments"].([]interface{})
				if !ok || len(attachments) == 0 {
					t.Fatal("expected attachments array")
				}
				attachment := attachments[0].(map[string]interface{})
				if attachment["color"] != "good" {
					t.Errorf("expected color 'good', got '%v'", attachment["color"])
				}
			},
		},
		{
			name:   "critical severity",
			config: SlackConfig{},
			n:      testNotification(domain.SeverityCritical),
			validatePayload: func(t *testing.T, payload map[string]interface{}) {
				attachments := payload["attachments"].([]interface{})
				attachment := attachments[0].(map[string]interface{})
				if attachment["color"] != "danger" {
					t.Errorf("expected color 'danger' for critical, got '%v'", attachment["color"])
				}
			},
		},
		{
			name:   "high severity",
			config: SlackConfig{},
			n:      testNotification(domain.SeverityHigh),
			validatePayload: func(t *testing.T, payload map[string]interface{}) {
				attachments := payload["attachments"].([]interface{})
				attachment := attachments[0].(map[string]interface{})
				if attachment["color"] != "warning" {
					t.Errorf("expected color 'warning' for high, got '%v'", attachment["color"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var receivedPayload map[string]interface{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("failed to read request body: %v", err)
				}
				if err := json.Unmarshal(body, &receivedPayload); err != nil {
					t.Fatalf("failed to unmarshal payload: %v", err)
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			tt.config.WebhookURL = server.URL

			notifier := NewSlackNotifier(tt.config)
			if err := notifier.Send(tt.n); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.validatePayload != nil {
				tt.validatePayload(t, receivedPayload)
			}
		})
	}
}

func TestSlackNotifier_Send_NoWebhook(t *testing.T) {
	notifier := NewSlackNotifier(SlackConfig{})
	err := notifier.Send(testNotification(domain.SeverityLow))
	if err == nil {
		t.Error("expected error for missing webhook URL")
	}
}

func TestSlackNotifier_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(SlackConfig{WebhookURL: server.URL})
	err := notifier.Send(testNotification(domain.SeverityLow))
	if err == nil {
		t.Error("expected error for server error response")
	}
}
