package event

import "testing"

func TestPublishDispatchesInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(Tick, func(Event) { order = append(order, "first") })
	bus.Subscribe(Tick, func(Event) { order = append(order, "second") })
	bus.SubscribeAll(func(Event) { order = append(order, "catchall") })

	bus.Publish(Event{Type: Tick, Tick: 1})

	want := []string{"first", "second", "catchall"}
	if len(order) != len(want) {
		t.Fatalf("dispatched %d handlers, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	bus := NewBus()
	var ticks, purchases int
	bus.Subscribe(Tick, func(Event) { ticks++ })
	bus.Subscribe(LotPurchased, func(Event) { purchases++ })

	bus.Publish(Event{Type: Tick})
	bus.Publish(Event{Type: Tick})
	bus.Publish(Event{Type: LotPurchased})

	if ticks != 2 || purchases != 1 {
		t.Errorf("ticks = %d purchases = %d, want 2 and 1", ticks, purchases)
	}
}

func TestReentrantPublishRunsNested(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(LotPurchased, func(e Event) {
		order = append(order, "purchase")
		bus.Publish(Event{Type: RivalTargetChanged})
		order = append(order, "after nested")
	})
	bus.Subscribe(RivalTargetChanged, func(Event) { order = append(order, "retarget") })

	bus.Publish(Event{Type: LotPurchased})

	want := []string{"purchase", "retarget", "after nested"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestResetDropsSubscribers(t *testing.T) {
	bus := NewBus()
	var calls int
	bus.Subscribe(Tick, func(Event) { calls++ })
	bus.SubscribeAll(func(Event) { calls++ })

	bus.Reset()
	bus.Publish(Event{Type: Tick})

	if calls != 0 {
		t.Errorf("stale handler fired %d times after reset", calls)
	}
}
