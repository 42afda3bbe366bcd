package bus

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(Event{Type: EventSyncProgress, Profile: "alice"})

	select {
	case e := <-sub.Events:
		if e.Profile != "alice" {
			t.Errorf("Profile = %q, want alice", e.Profile)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected Publish to stamp a zero-valued timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublishFansOutToMultipleSubscribers(t *testing.T) {
	b := New()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	b.Publish(Event{Type: EventHistoryRecorded})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case <-sub.Events:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}
	sub.Unsubscribe()
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0 after unsubscribe", got)
	}
}

func TestPublishDropsOldestWhenSubscriberBufferFull(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: EventLogLine, Profile: "flood"})
	}

	count := 0
	for {
		select {
		case <-sub.Events:
			count++
		default:
			if count != subscriberBuffer {
				t.Errorf("buffered events = %d, want %d (bounded, oldest dropped)", count, subscriberBuffer)
			}
			return
		}
	}
}

func TestPublishDefaultsZeroTimestamp(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	var zero time.Time
	b.Publish(Event{Type: EventProfileStateChanged, Timestamp: zero})

	e := <-sub.Events
	if e.Timestamp.IsZero() {
		t.Error("expected Publish to fill in a timestamp when none was given")
	}
}
