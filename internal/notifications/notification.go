package notifications

import (
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// Notification is the channel-agnostic payload routed to every
// NotificationChannel when an AlertInstance fires, replacing the
// teacher's events.Event as the thing channels dispatch on.
type Notification struct {
	AlertID      int64
	InstanceID   int64
	AlertName    string
	AlertType    domain.AlertType
	Severity     domain.Severity
	Message      string
	JobID        string
	ServerName   string
	TriggeredAt  time.Time
	Channels     []string // Alert.NotificationChannels: which named channels this alert wants
}

// wantsChannel reports whether name is in n.Channels, or n.Channels is
// empty (meaning "every configured channel").
func (n Notification) wantsChannel(name string) bool {
	if len(n.Channels) == 0 {
		return true
	}
	for _, c := range n.Channels {
		if c == name {
			return true
		}
	}
	return false
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
