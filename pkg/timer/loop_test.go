package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tickd/internal/eventbus"
)

// reentrant removes itself and registers next on its first firing,
// exercising callback → Add/Remove re-entrancy (no lock is held during
// dispatch).
type reentrant struct {
	tm   *Timer
	next *recorder
	hits atomic.Int32
}

func (r *reentrant) Notify(param any) {
	r.hits.Add(1)
	_ = r.tm.Remove(r, param, true)
	_ = r.tm.Add(r.next, 20*time.Millisecond, nil, true)
}

func TestCallbackMayAddAndRemove(t *testing.T) {
	t.Parallel()
	tm := New()
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Shutdown()

	next := &recorder{}
	sub := &reentrant{tm: tm, next: next}
	if err := tm.Add(sub, 30*time.Millisecond, nil, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return next.count() == 1 }) {
		t.Fatal("element registered from inside a callback never fired")
	}
	if h := sub.hits.Load(); h != 1 {
		t.Fatalf("self-removing subscriber fired %d times, want 1", h)
	}
}

type panicky struct{}

func (panicky) Notify(any) { panic("subscriber exploded") }

func TestPanicDoesNotAbortDispatch(t *testing.T) {
	t.Parallel()
	tm := New()
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Shutdown()

	// Same interval so both land in one due batch, panicker first.
	after := &recorder{}
	if err := tm.Add(panicky{}, 40*time.Millisecond, nil, false); err != nil {
		t.Fatalf("Add panicky: %v", err)
	}
	if err := tm.Add(after, 40*time.Millisecond, nil, false); err != nil {
		t.Fatalf("Add recorder: %v", err)
	}

	// The recorder keeps firing across repeated panics of its neighbor,
	// proving the worker survives.
	if !waitFor(t, 2*time.Second, func() bool { return after.count() >= 3 }) {
		t.Fatalf("worker died after subscriber panic; later element fired %d times", after.count())
	}
}

// mortal reports itself dead after a configurable point.
type mortal struct {
	alive atomic.Bool
	rec   recorder
}

func (m *mortal) Notify(param any) { m.rec.Notify(param) }
func (m *mortal) Alive() bool      { return m.alive.Load() }

func TestDeadSubscriberDeregistered(t *testing.T) {
	t.Parallel()
	tm := New()
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Shutdown()

	m := &mortal{}
	m.alive.Store(true)
	if err := tm.Add(m, 30*time.Millisecond, nil, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return m.rec.count() >= 1 }) {
		t.Fatal("live subscriber never fired")
	}

	m.alive.Store(false)
	if !waitFor(t, time.Second, func() bool { return tm.Len() == 0 }) {
		t.Fatal("dead subscriber was not deregistered")
	}
	fired := m.rec.count()
	time.Sleep(100 * time.Millisecond)
	if c := m.rec.count(); c != fired {
		t.Fatalf("dead subscriber fired again: %d -> %d", fired, c)
	}
}

func TestDispatchOrderAndParameter(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string

	tm := New()
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Shutdown()

	mk := func(name string) Subscriber {
		return notifyFunc(func(param any) {
			mu.Lock()
			order = append(order, name+":"+param.(string))
			mu.Unlock()
		})
	}

	// Same deadline; dispatch follows registration order.
	tm.Add(mk("first"), 50*time.Millisecond, "p1", true)
	tm.Add(mk("second"), 50*time.Millisecond, "p2", true)

	if !waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}) {
		t.Fatal("due batch did not fully dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "first:p1" || order[1] != "second:p2" {
		t.Fatalf("unexpected dispatch order/parameters: %v", order)
	}
}

// notifyFunc adapts a func to Subscriber for tests.
type notifyFunc func(param any)

func (f notifyFunc) Notify(param any) { f(param) }

func TestEventsPublished(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	tm := New(WithBus(bus))
	if err := tm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Shutdown()

	sub := &recorder{}
	if err := tm.Add(sub, 30*time.Millisecond, nil, true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !(seen[eventbus.KindTimerAdded] && seen[eventbus.KindTimerFired]) {
		select {
		case ev := <-ch:
			seen[ev.Kind] = true
		case <-deadline:
			t.Fatalf("missing timer events, saw %v", seen)
		}
	}
}
