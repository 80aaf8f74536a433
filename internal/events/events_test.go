package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classwatch/internal/alerts"
	"classwatch/internal/detection"
	"classwatch/internal/queue"
	"classwatch/internal/voice"
)

type fakeHub struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (h *fakeHub) Broadcast(raw []byte) {
	var m queue.Message
	_ = json.Unmarshal(raw, &m)
	h.mu.Lock()
	h.msgs = append(h.msgs, m)
	h.mu.Unlock()
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = m.Type
	}
	return out
}

func receive(t *testing.T, ch <-chan queue.Message) queue.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("queue is empty")
		return queue.Message{}
	}
}

func TestBusRoutesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := &fakeHub{}
	q := queue.NewInMemory(8)
	ch, _ := q.Consume(ctx)
	bus := NewBus(hub, q, nil)

	a := alerts.Alert{ID: "1", Type: alerts.TypeUnauthorized, Severity: alerts.SeverityHigh}
	bus.AlertChanged(ctx, alerts.EventCreated, a)
	bus.AlertChanged(ctx, alerts.EventResolved, a)
	bus.Detected(ctx, detection.Detection{Name: "John Smith", Authorized: true}, detection.StatusSecure)
	bus.Detected(ctx, detection.Detection{Name: "Unknown Person"}, detection.StatusUnauthorized)
	bus.MonitorChanged(ctx, true)

	assert.Equal(t, []string{"alert.created", "alert.resolved", TypeDetection, TypeDetection, TypeMonitor}, hub.types())

	first := receive(t, ch)
	assert.Equal(t, "alert.created", first.Type)
	var got alerts.Alert
	require.NoError(t, json.Unmarshal(first.Body, &got))
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, TypeDetectionUnauthorized, receive(t, ch).Type)
}

func TestBusDropsWhenInProcessQueueFull(t *testing.T) {
	q := queue.NewInMemory(1)
	bus := NewBus(nil, q, nil)
	bus.timeout = time.Hour

	a := alerts.Alert{ID: "1", Type: alerts.TypeUnauthorized, Severity: alerts.SeverityHigh}
	start := time.Now()
	bus.AlertChanged(context.Background(), alerts.EventCreated, a)
	a.ID = "2"
	bus.AlertChanged(context.Background(), alerts.EventCreated, a)
	assert.Less(t, time.Since(start), time.Second, "a full queue does not block the caller")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := q.Consume(ctx)
	var got alerts.Alert
	require.NoError(t, json.Unmarshal(receive(t, ch).Body, &got))
	assert.Equal(t, "1", got.ID)
	select {
	case m := <-ch:
		t.Fatalf("unexpected second message %s", m.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeAnnouncer struct {
	mu  sync.Mutex
	got []voice.Category
}

func (f *fakeAnnouncer) Announce(_ context.Context, c voice.Category) voice.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, c)
	return voice.ModeTone
}

func (f *fakeAnnouncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type countObserver map[voice.Category]int

func (o countObserver) Announced(c voice.Category, _ voice.Mode) { o[c]++ }

func alertMsg(t *testing.T, a alerts.Alert) queue.Message {
	t.Helper()
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	return queue.Message{Type: string(alerts.EventCreated), Body: raw}
}

func TestNotifierHandle(t *testing.T) {
	ann := &fakeAnnouncer{}
	obs := countObserver{}
	n := NewNotifier(ann, obs, nil)
	ctx := context.Background()

	c, ok := n.Handle(ctx, queue.Message{Type: TypeDetectionUnauthorized})
	assert.True(t, ok)
	assert.Equal(t, voice.CategoryUnauthorized, c)

	_, ok = n.Handle(ctx, alertMsg(t, alerts.Alert{Type: alerts.TypeProhibitedItem, Severity: alerts.SeverityLow}))
	assert.False(t, ok, "low severity is silent")

	c, ok = n.Handle(ctx, alertMsg(t, alerts.Alert{Type: alerts.TypeViolation, Severity: alerts.SeverityHigh}))
	assert.True(t, ok)
	assert.Equal(t, voice.CategoryDistraction, c)

	_, ok = n.Handle(ctx, queue.Message{Type: string(alerts.EventCreated), Body: []byte("{")})
	assert.False(t, ok)
	_, ok = n.Handle(ctx, queue.Message{Type: "alert.deleted"})
	assert.False(t, ok)

	assert.Equal(t, []voice.Category{voice.CategoryUnauthorized, voice.CategoryDistraction}, ann.got)
	assert.Equal(t, 1, obs[voice.CategoryUnauthorized])
}

func TestNotifierRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := queue.NewInMemory(4)
	ann := &fakeAnnouncer{}
	done := make(chan error, 1)
	go func() { done <- NewNotifier(ann, nil, nil).Run(ctx, q) }()

	require.NoError(t, q.Publish(ctx, queue.Message{Type: TypeDetectionUnauthorized}))
	require.Eventually(t, func() bool { return ann.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast([]byte(`{"type":"alert.created"}`))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"alert.created"}`, string(msg))

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
