package changebus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublishDelivers(t *testing.T) {
	t.Parallel()
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(Event{Kind: KindTools, SourceConnectionID: "c1"})

	select {
	case ev := <-sub.C():
		assert.Equal(t, KindTools, ev.Kind)
		assert.Equal(t, "c1", ev.SourceConnectionID)
	case <-time.After(time.Second):
		t.Fatal("expected event to be delivered")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	b.Publish(Event{Kind: KindPrompts})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case ev := <-sub.C():
			assert.Equal(t, KindPrompts, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("expected every subscriber to receive the event")
		}
	}
}

func TestPublishIsNonBlockingOnFullSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Kind: KindResources})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish must never block on a slow/full subscriber")
	}
}

func TestSubscriberCount(t *testing.T) {
	t.Parallel()
	b := New()
	assert.Equal(t, 0, b.SubscriberCount())

	sub1 := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	sub1.Close()
	assert.Equal(t, 1, b.SubscriberCount())

	sub2.Close()
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishConcurrentWithCloseDoesNotPanic(t *testing.T) {
	t.Parallel()
	b := New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish(Event{Kind: KindTools})
		}
	}()

	for i := 0; i < 200; i++ {
		sub := b.Subscribe()
		sub.Close()
	}
	<-done
}

func TestSubscriptionCloseIsIdempotentAndClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	sub := b.Subscribe()

	sub.Close()
	assert.NotPanics(t, func() { sub.Close() })

	_, open := <-sub.C()
	require.False(t, open, "channel must be closed after Close")
}
