package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	name string
	data string
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (r *recorder) write(event string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, recordedEvent{name: event, data: string(data)})
	return nil
}

func (r *recorder) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func TestStreamDeliversNotificationsThenReturnsOnClose(t *testing.T) {
	f := NewFanout(0)
	sub := f.Register(7)
	rec := &recorder{}

	f.Publish(7, map[string]int{"id": 1})
	f.Publish(7, map[string]int{"id": 2})

	done := make(chan error, 1)
	go func() { done <- Stream(context.Background(), sub, time.Second, rec.write) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	f.Unregister(7, sub)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after unregister")
	}

	events := rec.snapshot()
	assert.Equal(t, EventNotification, events[0].name)
	assert.JSONEq(t, `{"id":1}`, events[0].data)
	assert.JSONEq(t, `{"id":2}`, events[1].data)
}

func TestStreamSendsKeepaliveWhenIdle(t *testing.T) {
	sub := NewFanout(0).Register(7)
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Stream(ctx, sub, 20*time.Millisecond, rec.write) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	for _, ev := range rec.snapshot() {
		assert.Equal(t, EventPing, ev.name)
		assert.Equal(t, "{}", ev.data)
	}
}

func TestStreamStopsOnWriteError(t *testing.T) {
	f := NewFanout(0)
	sub := f.Register(7)
	f.Publish(7, "x")

	gone := errors.New("client gone")
	err := Stream(context.Background(), sub, time.Second, (&recorder{err: gone}).write)
	assert.ErrorIs(t, err, gone)
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, EventNotification, []byte(`{"id":1}`)))
	assert.Equal(t, "event: notification\ndata: {\"id\":1}\n\n", buf.String())
}
