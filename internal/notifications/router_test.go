package notifications

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// mockNotifier is a test implementation of NotificationChannel
type mockNotifier struct {
	name    string
	sent    int32 // atomic counter
	filter  func(Notification) bool
	sendErr error
	mu      sync.Mutex
	sentMsg []Notification
}

func newMockNotifier(name string, filter func(Notification) bool, sendErr error) *mockNotifier {
	if filter == nil {
		filter = func(Notification) bool { return true }
	}
	return &mockNotifier{
		name:    name,
		filter:  filter,
		sendErr: sendErr,
		sentMsg: make([]Notification, 0),
	}
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) ShouldNotify(n Notification) bool {
	return m.filter(n)
}

func (m *mockNotifier) Send(n Notification) error {
	atomic.AddInt32(&m.sent, 1)

	m.mu.Lock()
	m.sentMsg = append(m.sentMsg, n)
	m.mu.Unlock()

	return m.sendErr
}

func (m *mockNotifier) GetSentCount() int {
	return int(atomic.LoadInt32(&m.sent))
}

func (m *mockNotifier) GetNotifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Notification, len(m.sentMsg))
	copy(result, m.sentMsg)
	return result
}

func testNotification(severity domain.Severity) Notification {
	return Notification{
		AlertID:     1,
		InstanceID:  1,
		AlertName:   "test alert",
		AlertType:   domain.AlertErrorThreshold,
		Severity:    severity,
		Message:     "something happened",
		TriggeredAt: time.Unix(0, 0),
	}
}

func TestRouter_NewRouter(t *testing.T) {
	channels := []NotificationChannel{
		newMockNotifier("test1", nil, nil),
		newMockNotifier("test2", nil, nil),
	}

	router := NewRouter(channels)
	if router == nil {
		t.Fatal("NewRouter returned nil")
	}

	names := router.GetChannels()
	if len(names) != 2 {
		t.Errorf("expected 2 channels, got %d", len(names))
	}
}

func TestRouter_NewRouter_NilChannels(t *testing.T) {
	router := NewRouter(nil)
	if router == nil {
		t.Fatal("NewRouter returned nil")
	}

	names := router.GetChannels()
	if len(names) != 0 {
		t.Errorf("expected 0 channels, got %d", len(names))
	}
}

func TestRouter_AddChannel(t *testing.T) {
	router := NewRouter(nil)

	ch1 := newMockNotifier("ch1", nil, nil)
	router.AddChannel(ch1)

	names := router.GetChannels()
	if len(names) != 1 || names[0] != "ch1" {
		t.Errorf("expected [ch1], got %v", names)
	}

	ch2 := newMockNotifier("ch2", nil, nil)
	router.AddChannel(ch2)

	names = router.GetChannels()
	if len(names) != 2 {
		t.Errorf("expected 2 channels, got %d", len(names))
	}
}

func TestRouter_RemoveChannel(t *testing.T) {
	ch1 := newMockNotifier("ch1", nil, nil)
	ch2 := newMockNotifier("ch2", nil, nil)
	ch3 := newMockNotifier("ch3", nil, nil)

	router := NewRouter([]NotificationChannel{ch1, ch2, ch3})

	router.RemoveChannel("ch2")
	names := router.GetChannels()
	if len(names) != 2 {
		t.Errorf("expected 2 channels after removal, got %d", len(names))
	}

	for _, name := range names {
		if name == "ch2" {
			t.Error("ch2 should have been removed")
		}
	}

	router.RemoveChannel("nonexistent")
	names = router.GetChannels()
	if len(names) != 2 {
		t.Errorf("expected 2 channels after removing non-existent, got %d", len(names))
	}
}

func TestRouter_Route_AllChannels(t *testing.T) {
	ch1 := newMockNotifier("ch1", nil, nil)
	ch2 := newMockNotifier("ch2", nil, nil)
	ch3 := newMockNotifier("ch3", nil, nil)

	router := NewRouter([]NotificationChannel{ch1, ch2, ch3})

	router.Route(testNotification(domain.SeverityHigh))

	time.Sleep(100 * time.Millisecond)

	if ch1.GetSentCount() != 1 {
		t.Errorf("ch1: expected 1 sent, got %d", ch1.GetSentCount())
	}
	if ch2.GetSentCount() != 1 {
		t.Errorf("ch2: expected 1 sent, got %d", ch2.GetSentCount())
	}
	if ch3.GetSentCount() != 1 {
		t.Errorf("ch3: expected 1 sent, got %d", ch3.GetSentCount())
	}
}

func TestRouter_FilteredRoute(t *testing.T) {
	criticalOnly := newMockNotifier(
		"critical-only",
		func(n Notification) bool {
			return n.Severity == domain.SeverityCritical
		},
		nil,
	)
	allNotifs := newMockNotifier("all", nil, nil)

	router := NewRouter([]NotificationChannel{criticalOnly, allNotifs})

	router.Route(testNotification(domain.SeverityMedium))
	time.Sleep(100 * time.Millisecond)

	if criticalOnly.GetSentCount() != 0 {
		t.Errorf("critical-only: expected 0 (filtered out), got %d", criticalOnly.GetSentCount())
	}
	if allNotifs.GetSentCount() != 1 {
		t.Errorf("all: expected 1, got %d", allNotifs.GetSentCount())
	}

	router.Route(testNotification(domain.SeverityCritical))
	time.Sleep(100 * time.Millisecond)

	if criticalOnly.GetSentCount() != 1 {
		t.Errorf("critical-only: expected 1, got %d", criticalOnly.GetSentCount())
	}
	if allNotifs.GetSentCount() != 2 {
		t.Errorf("all: expected 2, got %d", allNotifs.GetSentCount())
	}
}

func TestRouter_Route_ErrorHandling(t *testing.T) {
	errChannel := newMockNotifier("error-ch", nil, errors.New("send failed"))
	okChannel := newMockNotifier("ok-ch", nil, nil)

	router := NewRouter([]NotificationChannel{errChannel, okChannel})

	router.Route(testNotification(domain.SeverityLow))
	time.Sleep(100 * time.Millisecond)

	if errChannel.GetSentCount() != 1 {
		t.Errorf("error-ch: expected 1 attempt, got %d", errChannel.GetSentCount())
	}
	if okChannel.GetSentCount() != 1 {
		t.Errorf("ok-ch: expected 1 sent, got %d", okChannel.GetSentCount())
	}
}

func TestRouter_Route_MultipleNotifications(t *testing.T) {
	ch := newMockNotifier("ch", nil, nil)
	router := NewRouter([]NotificationChannel{ch})

	for i := 0; i < 5; i++ {
		router.Route(testNotification(domain.SeverityLow))
	}

	time.Sleep(200 * time.Millisecond)

	if ch.GetSentCount() != 5 {
		t.Errorf("expected 5 sent, got %d", ch.GetSentCount())
	}
	if len(ch.GetNotifications()) != 5 {
		t.Errorf("expected 5 recorded, got %d", len(ch.GetNotifications()))
	}
}

func TestRouter_GetChannels(t *testing.T) {
	ch1 := newMockNotifier("alpha", nil, nil)
	ch2 := newMockNotifier("beta", nil, nil)
	ch3 := newMockNotifier("gamma", nil, nil)

	router := NewRouter([]NotificationChannel{ch1, ch2, ch3})

	names := router.GetChannels()
	if len(names) != 3 {
		t.Errorf("expected 3 channels, got %d", len(names))
	}

	nameMap := make(map[string]bool)
	for _, name := range names {
		nameMap[name] = true
	}

	for _, want := range []string{"alpha", "beta", "gamma"} {
		if !nameMap[want] {
			t.Errorf("expected channel %s not found", want)
		}
	}
}

func TestRouter_RouteAndWait_ReturnsPerChannelResults(t *testing.T) {
	ok := newMockNotifier("ok", nil, nil)
	failing := newMockNotifier("failing", nil, errors.New("boom"))
	filtered := newMockNotifier("filtered", func(Notification) bool { return false }, nil)

	router := NewRouter([]NotificationChannel{ok, failing, filtered})

	results := router.RouteAndWait(testNotification(domain.SeverityHigh))
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	byChannel := make(map[string]ChannelResult)
	for _, r := range results {
		byChannel[r.Channel] = r
	}

	if !byChannel["ok"].Sent || byChannel["ok"].Error != "" {
		t.Errorf("ok channel result wrong: %+v", byChannel["ok"])
	}
	if byChannel["failing"].Sent || byChannel["failing"].Error == "" {
		t.Errorf("failing channel result wrong: %+v", byChannel["failing"])
	}
	if byChannel["filtered"].Sent || byChannel["filtered"].Error != "" {
		t.Errorf("filtered channel result wrong: %+v", byChannel["filtered"])
	}
}

func TestRouter_ConcurrentAddRemove(t *testing.T) {
	router := NewRouter(nil)

	done := make(chan bool)

	for i := 0; i < 5; i++ {
		go func(id int) {
			ch := newMockNotifier("ch"+string(rune('a'+id)), nil, nil)
			router.AddChannel(ch)
			done <- true
		}(i)
	}

	for i := 0; i < 5; i++ {
		<-done
	}

	for i := 0; i < 3; i++ {
		go func(id int) {
			router.RemoveChannel("ch" + string(rune('a'+id)))
			done <- true
		}(i)
	}

	for i := 0; i < 3; i++ {
		<-done
	}

	names := router.GetChannels()
	if len(names) != 2 {
		t.Errorf("expected 2 channels after concurrent operations, got %d", len(names))
	}
}

func TestRouter_Route_ConcurrentSending(t *testing.T) {
	channels := make([]NotificationChannel, 10)
	for i := 0; i < 10; i++ {
		channels[i] = newMockNotifier("ch"+string(rune('a'+i)), nil, nil)
	}

	router := NewRouter(channels)

	for i := 0; i < 20; i++ {
		go router.Route(testNotification(domain.SeverityLow))
	}

	time.Sleep(500 * time.Millisecond)

	for _, ch := range channels {
		mock := ch.(*mockNotifier)
		if mock.GetSentCount() != 20 {
			t.Errorf("channel %s: expected 20 sent, got %d", ch.Name(), mock.GetSentCount())
		}
	}
}

func TestRouter_NotificationPreservation(t *testing.T) {
	ch := newMockNotifier("test", nil, nil)
	router := NewRouter([]NotificationChannel{ch})

	original := testNotification(domain.SeverityCritical)
	original.JobID = "job-7"
	original.ServerName = "web-01"

	router.Route(original)
	time.Sleep(100 * time.Millisecond)

	received := ch.GetNotifications()
	if len(received) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(received))
	}

	got := received[0]
	if got.AlertName != original.AlertName {
		t.Errorf("alert name mismatch: %s != %s", got.AlertName, original.AlertName)
	}
	if got.Severity != original.Severity {
		t.Errorf("severity mismatch: %s != %s", got.Severity, original.Severity)
	}
	if got.JobID != original.JobID {
		t.Errorf("jobID mismatch: %s != %s", got.JobID, original.JobID)
	}
	if got.ServerName != original.ServerName {
		t.Errorf("serverName mismatch: %s != %s", got.ServerName, original.ServerName)
	}
}
