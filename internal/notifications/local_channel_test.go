package notifications

import (
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

func TestLocalChannel_Name(t *testing.T) {
	ch := NewLocalChannel(NewDefaultManager())
	if ch.Name() != "local" {
		t.Errorf("expected name 'local', got '%s'", ch.Name())
	}
}

func TestLocalChannel_ShouldNotify(t *testing.T) {
	n := Notification{AlertName: "disk full", Message: "disk at 95%", TriggeredAt: time.Unix(0, 0)}

	enabled := NewManager(Config{EnableBanner: true})
	if !NewLocalChannel(enabled).ShouldNotify(n) {
		t.Error("expected ShouldNotify true when manager enabled and no channel filter")
	}

	disabled := NewManager(Config{})
	if NewLocalChannel(disabled).ShouldNotify(n) {
		t.Error("expected ShouldNotify false when manager disabled")
	}

	n.Channels = []string{"slack"}
	if NewLocalChannel(enabled).ShouldNotify(n) {
		t.Error("expected ShouldNotify false when notification targets other channels only")
	}

	n.Channels = []string{"local", "slack"}
	if !NewLocalChannel(enabled).ShouldNotify(n) {
		t.Error("expected ShouldNotify true when 'local' is among the targeted channels")
	}
}

func TestLocalChannel_Send(t *testing.T) {
	manager := NewManager(Config{EnableBanner: true})
	ch := NewLocalChannel(manager)

	n := Notification{
		AlertID:     1,
		InstanceID:  1,
		AlertName:   "disk full",
		AlertType:   domain.AlertPerformanceWarning,
		Severity:    domain.SeverityHigh,
		Message:     "disk at 95%",
		TriggeredAt: time.Unix(0, 0),
	}

	if err := ch.Send(n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := manager.GetBannerState()
	if !state.Visible {
		t.Error("expected banner to be visible after Send")
	}
}
