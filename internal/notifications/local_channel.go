package notifications

import "fmt"

// LocalChannel adapts the desktop-facing Manager (toast, terminal title
// flash, dashboard banner) into a NotificationChannel, so a standing
// Alert can route to "local" alongside the external Slack/Discord/email
// channels.
type LocalChannel struct {
	manager *Manager
}

func NewLocalChannel(manager *Manager) *LocalChannel {
	return &LocalChannel{manager: manager}
}

func (l *LocalChannel) Name() string { return "local" }

func (l *LocalChannel) ShouldNotify(n Notification) bool {
	return l.manager.IsEnabled() && n.wantsChannel("local")
}

func (l *LocalChannel) Send(n Notification) error {
	message := fmt.Sprintf("%s: %s", n.AlertName, n.Message)
	return l.manager.NotifySupervisorNeedsInput(message)
}
