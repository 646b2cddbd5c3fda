package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/notifications"
)

// SlackConfig holds configuration for Slack notifications.
type SlackConfig struct {
	WebhookURL  string             `json:"webhook_url"`
	Channel     string             `json:"channel,omitempty"`
	Username    string             `json:"username,omitempty"`
	IconEmoji   string             `json:"icon_emoji,omitempty"`
	MinSeverity domain.Severity    `json:"min_severity,omitempty"`
}

// SlackNotifier sends AlertInstance notifications to Slack via webhooks.
type SlackNotifier struct {
	config SlackConfig
	client *http.Client
}

func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) ShouldNotify(n notifications.Notification) bool {
	if s.config.MinSeverity != "" && severityBelow(n.Severity, s.config.MinSeverity) {
		return false
	}
	return true
}

func (s *SlackNotifier) Send(n notifications.Notification) error {
	if s.config.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	color := "good"
	switch n.Severity {
	case domain.SeverityCritical:
		color = "danger"
	case domain.SeverityHigh:
		color = "warning"
	}

	fields := []map[string]interface{}{
		{"title": "Alert Type", "value": string(n.AlertType), "short": true},
		{"title": "Severity", "value": string(n.Severity), "short": true},
	}
	if n.JobID != "" {
		fields = append(fields, map[string]interface{}{"title": "Job", "value": n.JobID, "short": true})
	}
	if n.ServerName != "" {
		fields = append(fields, map[string]interface{}{"title": "Server", "value": n.ServerName, "short": true})
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("%s: %s", n.AlertName, n.Message),
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  n.AlertName,
				"fields": fields,
				"ts":     n.TriggeredAt.Unix(),
			},
		},
	}
	if s.config.Channel != "" {
		payload["channel"] = s.config.Channel
	}
	if s.config.Username != "" {
		payload["username"] = s.config.Username
	}
	if s.config.IconEmoji != "" {
		payload["icon_emoji"] = s.config.IconEmoji
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := s.client.Post(s.config.WebhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}
	return nil
}

func severityBelow(severity, min domain.Severity) bool {
	return severityRank(severity) < severityRank(min)
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 4
	case domain.SeverityHigh:
		return 3
	case domain.SeverityMedium:
		return 2
	case domain.SeverityLow:
		return 1
	default:
		return 0
	}
}
