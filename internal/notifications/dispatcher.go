package notifications

import (
	"context"
	"encoding/json"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// Dispatcher adapts Router into the alerts.Notifier interface
// (`Notify(ctx, alert, instance) (json.RawMessage, error)`), so
// internal/alerts doesn't need to import this package directly — it
// only needs something structurally satisfying that narrow interface.
type Dispatcher struct {
	router *Router
}

func NewDispatcher(router *Router) *Dispatcher {
	return &Dispatcher{router: router}
}

// Notify routes the fired instance to every channel the Alert names
// (or all registered channels, if none are named) and returns a JSON
// summary of each channel's outcome for AlertInstance.notificationsSent.
func (d *Dispatcher) Notify(_ context.Context, alert *domain.Alert, instance *domain.AlertInstance) (json.RawMessage, error) {
	n := Notification{
		AlertID:     alert.ID,
		InstanceID:  instance.ID,
		AlertName:   alert.Name,
		AlertType:   alert.AlertType,
		Severity:    instance.Severity,
		Message:     instance.Message,
		JobID:       instance.JobID,
		ServerName:  instance.ServerName,
		TriggeredAt: instance.TriggeredAt,
		Channels:    alert.NotificationChannels,
	}
	results := d.router.RouteAndWait(n)
	return json.Marshal(results)
}
