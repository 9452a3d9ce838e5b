package app_test

import (
	"fmt"
	"testing"

	"learnspace-service/internal/app"
	"learnspace-service/internal/domain"
)

func TestNotifierFanOut(t *testing.T) {
	n := app.NewNotifier()
	a, cancelA := n.Subscribe()
	defer cancelA()
	b, cancelB := n.Subscribe()
	defer cancelB()

	n.Info("hello")

	for name, ch := range map[string]<-chan domain.Notification{"a": a, "b": b} {
		select {
		case note := <-ch:
			if note.Kind != domain.NotifyInfo || note.Message != "hello" {
				t.Fatalf("subscriber %s got %+v", name, note)
			}
		default:
			t.Fatalf("subscriber %s got nothing", name)
		}
	}
}

func TestNotifierDropsOldestForSlowSubscriber(t *testing.T) {
	n := app.NewNotifier()
	ch, cancel := n.Subscribe()
	defer cancel()

	// Overflow the buffer without reading; the publisher must never block
	// and the newest notification must survive.
	for i := 0; i < 20; i++ {
		n.Error(fmt.Sprintf("event %d", i))
	}

	var last domain.Notification
	count := 0
	for {
		select {
		case note := <-ch:
			last = note
			count++
			continue
		default:
		}
		break
	}
	if count == 0 {
		t.Fatal("expected buffered notifications")
	}
	if last.Message != "event 19" {
		t.Fatalf("newest notification lost, last seen: %+v", last)
	}
}

func TestNotifierCancelIsIdempotent(t *testing.T) {
	n := app.NewNotifier()
	_, cancel := n.Subscribe()
	cancel()
	cancel()

	// Publishing after cancellation must not panic or block.
	n.Info("still fine")
}
