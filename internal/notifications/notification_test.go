package notifications

import (
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

func TestNotification_WantsChannel(t *testing.T) {
	tests := []struct {
		name     string
		channels []string
		target   string
		expected bool
	}{
		{name: "no channels listed means all channels wanted", channels: nil, target: "slack", expected: true},
		{name: "channel listed and matches", channels: []string{"slack", "email"}, target: "slack", expected: true},
		{name: "channel listed but no match", channels: []string{"slack", "email"}, target: "local", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Notification{Channels: tt.channels}
			if got := n.wantsChannel(tt.target); got != tt.expected {
				t.Errorf("wantsChannel(%q) = %v, want %v", tt.target, got, tt.expected)
			}
		})
	}
}

func TestSeverityRank_Ordering(t *testing.T) {
	if severityRank(domain.SeverityLow) >= severityRank(domain.SeverityMedium) {
		t.Error("expected Low < Medium")
	}
	if severityRank(domain.SeverityMedium) >= severityRank(domain.SeverityHigh) {
		t.Error("expected Medium < High")
	}
	if severityRank(domain.SeverityHigh) >= severityRank(domain.SeverityCritical) {
		t.Error("expected High < Critical")
	}
	if severityRank("") != 0 {
		t.Error("expected unknown severity to rank 0")
	}
}
