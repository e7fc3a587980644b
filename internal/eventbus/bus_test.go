package eventbus

import "testing"

func TestSubscribeFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	rem, unsubRem := b.Subscribe(4, "reminder.")
	defer unsubRem()

	b.Publish(Event{Type: "notifier.sent"})
	b.Publish(Event{Type: "reminder.fired", Data: "standup"})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(rem); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	ev := <-rem
	if ev.Type != "reminder.fired" || ev.Time.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: "x"})
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "x"})
}
