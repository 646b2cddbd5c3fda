package notifications

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// NotificationChannel represents a channel that can dispatch a
// Notification (Slack, Discord, email, or a local toast/terminal/
// banner trio).
type NotificationChannel interface {
	Name() string
	ShouldNotify(n Notification) bool
	Send(n Notification) error
}

// Router dispatches a fired AlertInstance's Notification to every
// matching registered channel. Grounded unchanged on the teacher's
// Router: per-channel goroutine fan-out, fire-and-forget by default,
// only the event type it dispatches on has changed.
type Router struct {
	channels []NotificationChannel
	mu       sync.RWMutex
}

func NewRouter(channels []NotificationChannel) *Router {
	if channels == nil {
		channels = []NotificationChannel{}
	}
	return &Router{channels: channels}
}

func (r *Router) AddChannel(channel NotificationChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
}

func (r *Router) RemoveChannel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	filtered := make([]NotificationChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.Name() != name {
			filtered = append(filtered, ch)
		}
	}
	r.channels = filtered
}

// Route fans a Notification out to all matching channels asynchronously,
// logging failures without returning them.
func (r *Router) Route(n Notification) {
	for _, ch := range r.snapshot() {
		go func(channel NotificationChannel) {
			if !channel.ShouldNotify(n) {
				return
			}
			if err := channel.Send(n); err != nil {
				log.Warn().Err(err).Str("channel", channel.Name()).Int64("alertInstanceId", n.InstanceID).Msg("notifications: send failed")
			}
		}(ch)
	}
}

// ChannelResult records one channel's dispatch outcome, the per-channel
// detail folded into AlertInstance.notificationsSent.
type ChannelResult struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// RouteAndWait dispatches to every matching channel and blocks until
// all have completed, returning each channel's outcome. Used by the
// alert engine, which must record the dispatch result onto the fired
// AlertInstance.
func (r *Router) RouteAndWait(n Notification) []ChannelResult {
	channels := r.snapshot()
	results := make([]ChannelResult, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		if !ch.ShouldNotify(n) {
			results[i] = ChannelResult{Channel: ch.Name(), Sent: false}
			continue
		}
		wg.Add(1)
		go func(idx int, channel NotificationChannel) {
			defer wg.Done()
			if err := channel.Send(n); err != nil {
				results[idx] = ChannelResult{Channel: channel.Name(), Sent: false, Error: err.Error()}
				return
			}
			results[idx] = ChannelResult{Channel: channel.Name(), Sent: true}
		}(i, ch)
	}
	wg.Wait()
	return results
}

func (r *Router) snapshot() []NotificationChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NotificationChannel, len(r.channels))
	copy(out, r.channels)
	return out
}

func (r *Router) GetChannels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name()
	}
	return names
}
