package timer

import "time"

// Snapshot is a point-in-time view of the engine, for status/debug
// surfaces. Elements appear in registration order.
type Snapshot struct {
	State    State         `json:"state"`
	Elements []ElementInfo `json:"elements"`
}

type ElementInfo struct {
	Subscriber string        `json:"subscriber"`
	Interval   time.Duration `json:"interval"`
	Once       bool          `json:"once"`
	NextNotify time.Time     `json:"next_notify"`
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	items := make([]ElementInfo, 0, len(t.subs))
	for _, el := range t.subs {
		items = append(items, ElementInfo{
			Subscriber: subscriberName(el.subscriber),
			Interval:   el.interval,
			Once:       el.once,
			NextNotify: el.nextNotify,
		})
	}
	t.mu.Unlock()

	return Snapshot{State: t.State(), Elements: items}
}
