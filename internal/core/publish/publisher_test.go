package publish

import (
	"testing"
	"time"

	"autoreg/internal/core/attempt"
)

func TestPublisher_SubscriberReceivesEventsInOrder(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	ch, unsub := p.Subscribe()
	defer unsub()

	p.State("token_check")
	p.State("calibrating")
	p.State("waiting")

	for _, want := range []string{"token_check", "calibrating", "waiting"} {
		select {
		case e := <-ch:
			if e.Kind != KindState || e.Phase != want {
				t.Fatalf("got %+v, want phase %q", e, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublisher_SlowSubscriberDropsOldestNonDoneEvents(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	ch, unsub := p.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer+10; i++ {
		p.Countdown(time.Duration(i) * time.Second)
	}

	if len(ch) != subscriberBuffer {
		t.Fatalf("expected buffer to stay at capacity %d, got %d", subscriberBuffer, len(ch))
	}
}

func TestPublisher_DoneEventIsNeverDropped(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	ch, unsub := p.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer+5; i++ {
		p.Countdown(time.Duration(i) * time.Second)
	}
	p.Done(map[string]attempt.CRNResult{"24066": {CRN: "24066", Status: attempt.StatusSuccess}})

	var lastEvent Event
	for {
		select {
		case e := <-ch:
			lastEvent = e
		default:
			goto drained
		}
	}
drained:
	if lastEvent.Kind != KindDone {
		t.Fatalf("expected the last buffered event to be KindDone, got %v", lastEvent.Kind)
	}
}

func TestPublisher_MultipleSubscribersEachGetFullStream(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	ch1, unsub1 := p.Subscribe()
	defer unsub1()
	ch2, unsub2 := p.Subscribe()
	defer unsub2()

	p.Log(LevelInfo, "hello")

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Kind != KindLog || e.Message != "hello" {
				t.Fatalf("unexpected event: %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestPublisher_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	ch, unsub := p.Subscribe()
	unsub()

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}
