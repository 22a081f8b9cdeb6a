package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeUnsubscribe(t *testing.T) {
	b := NewBus()

	ch := b.Subscribe()
	require.NotNil(t, ch)
	b.mu.RLock()
	assert.Len(t, b.listeners, 1)
	b.mu.RUnlock()

	b.Unsubscribe(ch)
	b.mu.RLock()
	assert.Len(t, b.listeners, 0)
	b.mu.RUnlock()

	_, open := <-ch
	assert.False(t, open)
}

func TestBus_Publish(t *testing.T) {
	b := NewBus()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	Success(b, "Projeto criado")

	for _, ch := range []<-chan Notification{ch1, ch2} {
		select {
		case n := <-ch:
			assert.Equal(t, KindSuccess, n.Kind)
			assert.Equal(t, "Projeto criado", n.Message)
			assert.NotEmpty(t, n.ID)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("listener did not receive notification")
		}
	}
}

func TestBus_PublishNonBlocking(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			Error(b, "boom")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full listener")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBus_UnsubscribeUnknown(t *testing.T) {
	b := NewBus()
	other := make(chan Notification)
	assert.NotPanics(t, func() { b.Unsubscribe(other) })
}

func TestNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Success(nil, "ok")
		Error(nil, "boom")
	})

	t.Run("nil bus", func(t *testing.T) {
		var b *Bus
		assert.NotPanics(t, func() { Success(b, "ok") })
	})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)

	Success(&r, "a")
	Error(&r, "b")
	Error(&r, "c")

	assert.Len(t, r.All(), 3)
	assert.Equal(t, 1, r.Count(KindSuccess))
	assert.Equal(t, 2, r.Count(KindError))
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.Message)

	r.Reset()
	assert.Empty(t, r.All())
}
