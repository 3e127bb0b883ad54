package notify

import (
	"sync"
	"testing"
	"time"
)

// drain reads up to n events without blocking longer than the timeout.
func drain(t *testing.T, sub *Subscription, n int) []int {
	t.Helper()
	var got []int
	for len(got) < n {
		select {
		case item, ok := <-sub.Events():
			if !ok {
				t.Fatalf("channel closed after %d of %d events", len(got), n)
			}
			got = append(got, item)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func TestPublishOrder(t *testing.T) {
	n := New(16)
	sub := n.Subscribe()
	defer sub.Cancel()

	for i := 0; i < 10; i++ {
		n.Publish(i)
	}

	got := drain(t, sub, 10)
	for i, item := range got {
		if item != i {
			t.Errorf("event[%d] = %d, want %d", i, item, i)
		}
	}
}

func TestNoReplay(t *testing.T) {
	n := New(16)

	n.Publish(1)
	n.Publish(2)

	sub := n.Subscribe()
	defer sub.Cancel()

	n.Publish(3)

	got := drain(t, sub, 1)
	if got[0] != 3 {
		t.Errorf("first event = %d, want 3 (events before Subscribe must not replay)", got[0])
	}

	select {
	case item := <-sub.Events():
		t.Errorf("unexpected extra event %d", item)
	default:
	}
}

func TestFanOut(t *testing.T) {
	n := New(16)
	subA := n.Subscribe()
	subB := n.Subscribe()
	defer subA.Cancel()
	defer subB.Cancel()

	n.Publish(7)
	n.Publish(8)

	for name, sub := range map[string]*Subscription{"A": subA, "B": subB} {
		got := drain(t, sub, 2)
		if got[0] != 7 || got[1] != 8 {
			t.Errorf("subscriber %s got %v, want [7 8]", name, got)
		}
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	n := New(2)
	slow := n.Subscribe()
	fast := n.Subscribe()
	defer fast.Cancel()

	// Fill slow's queue, keep fast drained.
	for i := 0; i < 3; i++ {
		n.Publish(i)
		drain(t, fast, 1)
	}

	if !slow.Dropped() {
		t.Fatal("slow subscriber should have been dropped on overflow")
	}
	if n.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount = %d, want 1", n.SubscriberCount())
	}

	// The dropped channel still yields its two queued events, then closes.
	drain(t, slow, 2)
	if _, ok := <-slow.Events(); ok {
		t.Error("dropped subscriber's channel should be closed after queued events")
	}

	// The fast subscriber is unaffected by its peer's eviction.
	n.Publish(42)
	if got := drain(t, fast, 1); got[0] != 42 {
		t.Errorf("fast subscriber got %d, want 42", got[0])
	}
}

func TestCancel(t *testing.T) {
	n := New(16)
	sub := n.Subscribe()

	n.Publish(1)
	sub.Cancel()
	sub.Cancel() // idempotent

	if n.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d after Cancel, want 0", n.SubscriberCount())
	}
	if sub.Dropped() {
		t.Error("Cancel must not mark the subscription dropped")
	}

	// Publishing after cancel must not panic or deliver.
	n.Publish(2)
}

func TestConcurrentPublishers(t *testing.T) {
	n := New(1024)
	sub := n.Subscribe()
	defer sub.Cancel()

	const publishers = 4
	const perPublisher = 50

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				n.Publish(p)
			}
		}(p)
	}
	wg.Wait()

	got := drain(t, sub, publishers*perPublisher)
	seen := make(map[int]int)
	for _, item := range got {
		seen[item]++
	}
	for p := 0; p < publishers; p++ {
		if seen[p] != perPublisher {
			t.Errorf("publisher %d: delivered %d events, want %d", p, seen[p], perPublisher)
		}
	}
}
