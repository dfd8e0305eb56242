package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageQueueFIFO(t *testing.T) {
	q := NewMessageQueue()

	q.Push(ContentMessage{Text: "one"})
	q.Push(ContentMessage{Text: "two"})
	q.Push(TurnCompleteMessage{})

	m, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, "one", m.(ContentMessage).Text)

	m, ok = q.TryPop()
	require.True(t, ok)
	require.Equal(t, "two", m.(ContentMessage).Text)

	m, ok = q.TryPop()
	require.True(t, ok)
	require.IsType(t, TurnCompleteMessage{}, m)

	_, ok = q.TryPop()
	require.False(t, ok)
}

func TestMessageQueueTryPopEmpty(t *testing.T) {
	q := NewMessageQueue()
	m, ok := q.TryPop()
	require.False(t, ok)
	require.Nil(t, m)
	require.Equal(t, 0, q.Len())
}

func TestMessageQueueNotifyWakesWaiter(t *testing.T) {
	q := NewMessageQueue()

	woke := make(chan struct{})
	go func() {
		<-q.Notify()
		close(woke)
	}()

	q.Push(ContentMessage{Text: "wake"})

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was not notified after Push")
	}
}

func TestMessageQueuePushDoesNotBlock(t *testing.T) {
	q := NewMessageQueue()

	// nobody draining notify; repeated pushes must still return
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Push(ContentMessage{Text: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked with no notify consumer")
	}
	require.Equal(t, 100, q.Len())
}
