package timer

import (
	"time"

	"tickd/internal/eventbus"
	"tickd/pkg/logx"
)

// run is the worker loop. Each iteration re-checks the shutdown flag,
// then either blocks indefinitely (empty registry), sleeps until the
// earliest deadline, or dispatches due elements. Every wake on the wake
// channel restarts the iteration: a wake means "recompute", never
// "something is due".
func (t *Timer) run() {
	defer func() {
		t.setState(StateShuttingDown)
		close(t.done)
	}()

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		deadline, ok := t.NextDeadline()
		if !ok {
			// Nothing scheduled: block with no timeout until an
			// Add/Remove/Shutdown signals us.
			t.setState(StateIdle)
			select {
			case <-t.stop:
				return
			case <-t.wake:
			}
			continue
		}

		if wait := time.Until(deadline); wait > 0 {
			t.setState(StateSleeping)
			tm := time.NewTimer(wait)
			select {
			case <-t.stop:
				tm.Stop()
				return
			case <-t.wake:
				// Some other goroutine mutated the registry; the
				// deadline we slept on may be stale.
				tm.Stop()
				continue
			case <-tm.C:
			}
		}

		t.setState(StateDispatching)
		t.dispatch()
	}
}

// dispatch performs one scan: due elements are collected into a batch,
// once-elements are dropped from the registry, periodic elements are
// rescheduled to now+interval. The registry lock is released before any
// callback runs so callbacks can Add/Remove without deadlocking and a
// slow callback does not block other goroutines mutating the registry.
func (t *Timer) dispatch() {
	now := time.Now()

	t.mu.Lock()
	var due []*element
	kept := t.subs[:0]
	for _, el := range t.subs {
		if el.nextNotify.After(now) {
			kept = append(kept, el)
			continue
		}
		due = append(due, el)
		if el.once {
			continue
		}
		el.nextNotify = now.Add(el.interval)
		kept = append(kept, el)
	}
	// Nil out the tail so dropped once-elements do not leak.
	for i := len(kept); i < len(t.subs); i++ {
		t.subs[i] = nil
	}
	t.subs = kept
	t.mu.Unlock()

	// Sequential, in registration order. No lock held.
	for _, el := range due {
		t.fire(el)
	}
}

// fire invokes one due element. A subscriber that reports itself dead is
// deregistered instead of notified. Panics are contained here so one
// broken subscriber cannot abort the batch or kill the worker
// (report-and-continue; there is no retry).
func (t *Timer) fire(el *element) {
	if k, ok := el.subscriber.(Keepalive); ok && !k.Alive() {
		// Periodic elements were rescheduled during the scan; take the
		// exact element back out. Pointer removal sidesteps identity
		// matching, which cannot see uncomparable subscribers. A
		// once-element is already gone and drops out as a no-op.
		t.removeElement(el)
		t.log.Debug("dead subscriber dropped", logx.String("subscriber", subscriberName(el.subscriber)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if t.panicLog.Allow() {
				t.log.Error("subscriber panicked",
					logx.String("subscriber", subscriberName(el.subscriber)),
					logx.Any("panic", r),
					logx.Stack(logx.StackTrace(4, 16)),
				)
			}
			t.publish(eventbus.KindTimerPanic, eventbus.TimerEvent{
				Subscriber: subscriberName(el.subscriber),
				Interval:   el.interval,
				Once:       el.once,
			})
		}
	}()

	el.subscriber.Notify(el.parameter)
	t.publish(eventbus.KindTimerFired, eventbus.TimerEvent{
		Subscriber: subscriberName(el.subscriber),
		Interval:   el.interval,
		Once:       el.once,
		Due:        el.nextNotify,
	})
}
