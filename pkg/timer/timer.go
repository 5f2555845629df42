package timer

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickd/internal/eventbus"
	"tickd/pkg/logx"
)

// Timer is the scheduling engine. The zero value is not usable; create
// instances with New.
type Timer struct {
	log logx.Logger
	bus eventbus.Bus // optional; nil disables event publication

	// mu guards subs. It is never held while a callback runs.
	mu   sync.Mutex
	subs []*element

	// wake interrupts the worker's sleep. Buffered so a signal sent
	// while the worker is dispatching (not sleeping) is not lost.
	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	lifeMu   sync.Mutex
	started  bool
	shutdown bool
	stopOnce sync.Once

	stateMu sync.Mutex
	state   State

	// panicLog throttles reports from repeatedly-panicking subscribers
	// so a broken 100ms timer cannot flood the log.
	panicLog *rate.Limiter
}

// State describes what the worker goroutine is currently doing.
type State string

const (
	StateIdle         State = "idle"     // registry empty, blocked on wake
	StateSleeping     State = "sleeping" // waiting for a known deadline
	StateDispatching  State = "dispatching"
	StateShuttingDown State = "shutdown"
)

type Option func(*Timer)

func WithLogger(log logx.Logger) Option {
	return func(t *Timer) { t.log = log }
}

// WithBus enables non-blocking publication of timer.* events.
func WithBus(bus eventbus.Bus) Option {
	return func(t *Timer) { t.bus = bus }
}

func New(opts ...Option) *Timer {
	t := &Timer{
		log:      logx.Nop(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateIdle,
		panicLog: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Add registers a subscriber firing every interval, or once after
// interval when once is true. The first deadline is now+interval.
//
// The parameter is opaque: it is handed back to Notify unchanged and
// compared only by identity. (subscriber, parameter) must be unique
// among registered elements. Uncomparable subscriber or parameter
// values are identity-distinct from everything, so they always pass
// the duplicate check but can never be targeted by Remove.
func (t *Timer) Add(sub Subscriber, interval time.Duration, parameter any, once bool) error {
	if sub == nil {
		return ErrNilSubscriber
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}

	el := &element{
		subscriber: sub,
		parameter:  parameter,
		interval:   interval,
		once:       once,
		nextNotify: time.Now().Add(interval),
	}

	t.mu.Lock()
	for _, existing := range t.subs {
		if existing.matches(sub, parameter) {
			t.mu.Unlock()
			return ErrDuplicateSubscriber
		}
	}
	t.subs = append(t.subs, el)
	t.mu.Unlock()

	t.log.Debug("subscriber added",
		logx.String("subscriber", subscriberName(sub)),
		logx.Duration("interval", interval),
		logx.Bool("once", once),
	)
	t.publish(eventbus.KindTimerAdded, eventbus.TimerEvent{
		Subscriber: subscriberName(sub),
		Interval:   interval,
		Once:       once,
		Due:        el.nextNotify,
	})
	t.signal()
	return nil
}

// Remove deregisters the element matching (sub, parameter) identity and
// guarantees no future firing. It cannot cancel a firing that already
// left the dispatch scan. A missing element is an error unless dontFail
// is set.
func (t *Timer) Remove(sub Subscriber, parameter any, dontFail bool) error {
	t.mu.Lock()
	for i, el := range t.subs {
		if !el.matches(sub, parameter) {
			continue
		}
		copy(t.subs[i:], t.subs[i+1:])
		t.subs[len(t.subs)-1] = nil
		t.subs = t.subs[:len(t.subs)-1]
		t.mu.Unlock()

		t.log.Debug("subscriber removed", logx.String("subscriber", subscriberName(sub)))
		t.publish(eventbus.KindTimerRemoved, eventbus.TimerEvent{Subscriber: subscriberName(sub)})
		t.signal()
		return nil
	}
	t.mu.Unlock()

	if dontFail {
		return nil
	}
	return ErrNotFound
}

// removeElement deletes one element by pointer. Used by the dispatcher,
// which holds the exact element and must not depend on identity
// comparison.
func (t *Timer) removeElement(target *element) {
	t.mu.Lock()
	for i, el := range t.subs {
		if el != target {
			continue
		}
		copy(t.subs[i:], t.subs[i+1:])
		t.subs[len(t.subs)-1] = nil
		t.subs = t.subs[:len(t.subs)-1]
		t.mu.Unlock()
		t.publish(eventbus.KindTimerRemoved, eventbus.TimerEvent{Subscriber: subscriberName(target.subscriber)})
		t.signal()
		return
	}
	t.mu.Unlock()
}

// NextDeadline returns the earliest nextNotify among registered
// elements, or ok=false when the registry is empty. O(n).
func (t *Timer) NextDeadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var min time.Time
	found := false
	for _, el := range t.subs {
		if !found || el.nextNotify.Before(min) {
			min = el.nextNotify
			found = true
		}
	}
	return min, found
}

// Len reports the number of registered elements.
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Start spawns the worker goroutine. It may be called at most once;
// after Shutdown the engine is unusable.
func (t *Timer) Start() error {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	if t.shutdown {
		return ErrShutdown
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true
	go t.run()
	t.log.Debug("worker started")
	return nil
}

// Shutdown stops the worker and blocks until it has fully exited. It is
// idempotent and safe to call even if Start was never called. After
// Shutdown the engine cannot be restarted.
func (t *Timer) Shutdown() {
	t.lifeMu.Lock()
	t.shutdown = true
	started := t.started
	t.lifeMu.Unlock()

	t.stopOnce.Do(func() { close(t.stop) })
	if started {
		<-t.done
	}
	t.log.Debug("worker stopped")
}

// State reports what the worker is currently doing. Best-effort, for
// status surfaces only.
func (t *Timer) State() State {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state
}

func (t *Timer) setState(s State) {
	t.stateMu.Lock()
	t.state = s
	t.stateMu.Unlock()
}

// signal wakes the worker so it recomputes its sleep target. Non-blocking:
// when the buffer already holds a pending wake, one is enough.
func (t *Timer) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Timer) publish(kind string, ev eventbus.TimerEvent) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Kind: kind, Data: ev})
}

func subscriberName(sub Subscriber) string {
	type named interface{ TimerName() string }
	if n, ok := sub.(named); ok {
		return n.TimerName()
	}
	return fmt.Sprintf("%T", sub)
}
