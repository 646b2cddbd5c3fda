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

// DiscordConfig holds configuration for Discord notifications.
type DiscordConfig struct {
	WebhookURL  string          `json:"webhook_url"`
	Username    string          `json:"username,omitempty"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	MinSeverity domain.Severity `json:"min_severity,omitempty"`
}

// DiscordNotifier sends AlertInstance notifications to Discord via webhooks.
type DiscordNotifier struct {
	config DiscordConfig
	client *http.Client
}

func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) ShouldNotify(n notifications.Notification) bool {
	if d.config.MinSeverity != "" && severityBelow(n.Severity, d.config.MinSeverity) {
		return false
	}
	return true
}

func (d *DiscordNotifier) Send(n notifications.Notification) error {
	if d.config.WebhookURL == "" {
		return fmt.Errorf("discord webhook URL not configured")
	}

	color := 0x00FF00
	switch n.Severity {
	case domain.SeverityCritical:
		color = 0xFF0000
	case domain.SeverityHigh:
		color = 0xFFA500
	}

	fields := []map[string]interface{}{
		{"name": "Alert Type", "value": string(n.AlertType), "inline": true},
		{"name": "Severity", "value": string(n.Severity), "inline": true},
	}
	if n.JobID != "" {
		fields = append(fields, map[string]interface{}{"name": "Job", "value": n.JobID, "inline": true})
	}
	if n.ServerName != "" {
		fields = append(fields, map[string]interface{}{"name": "Server", "value": n.ServerName, "inline": true})
	}

	embed := map[string]interface{}{
		"title":       n.AlertName,
		"description": n.Message,
		"color":       color,
		"timestamp":   n.TriggeredAt.Format(time.RFC3339),
		"fields":      fields,
	}

	payload := map[string]interface{}{"embeds": []map[string]interface{}{embed}}
	if d.config.Username != "" {
		payload["username"] = d.config.Username
	}
	if d.config.AvatarURL != "" {
		payload["avatar_url"] = d.config.AvatarURL
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := d.client.Post(d.config.WebhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}
