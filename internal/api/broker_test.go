package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	pid := "p1"
	ch := b.Subscribe(pid)

	evt := PlanEvent{Type: "stage1.optimized", Data: map[string]any{"status": "optimal"}}
	b.Publish(pid, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["status"].(string) != "optimal" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(pid, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerIsolatesPlans(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("p1")
	ch2 := b.Subscribe("p2")
	defer b.Unsubscribe("p1", ch1)
	defer b.Unsubscribe("p2", ch2)

	b.Publish("p1", PlanEvent{Type: "stage1.built"})

	select {
	case <-ch2:
		t.Fatal("event leaked across plan subscriptions")
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case got := <-ch1:
		if got.Type != "stage1.built" {
			t.Fatalf("got %s", got.Type)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}
