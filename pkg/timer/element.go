package timer

import (
	"reflect"
	"time"
)

// Subscriber is the capability invoked when an element fires.
//
// Notify runs on the worker goroutine. It may block (at the cost of
// delaying every other element) and it may call back into Add/Remove.
// The registry never owns the subscriber; its lifetime is the caller's
// responsibility.
type Subscriber interface {
	Notify(parameter any)
}

// Keepalive is an optional extension of Subscriber. When implemented,
// the dispatcher checks Alive() before every invocation and silently
// deregisters a subscriber that reports false instead of firing it.
// This closes the "registered but logically dead" gap without giving
// the registry ownership of the subscriber.
type Keepalive interface {
	Alive() bool
}

// element is one registered timer.
//
// Identity is (subscriber identity, parameter identity); interval and
// once play no part in it. Comparable values (pointers, strings, ...)
// match by ==; an uncomparable value (a func, a slice-bearing struct)
// is identity-distinct from everything, itself included, so it can be
// registered freely but only leaves the registry via its once flag or
// a Keepalive check.
type element struct {
	subscriber Subscriber
	parameter  any
	interval   time.Duration
	once       bool

	// nextNotify is the absolute time of the next firing. Initialized to
	// now+interval on Add; advanced by the dispatcher for periodic
	// elements each time they fire.
	nextNotify time.Time
}

func (el *element) matches(sub Subscriber, parameter any) bool {
	return identical(el.subscriber, sub) && identical(el.parameter, parameter)
}

// identical reports a == b without panicking on uncomparable dynamic
// types. Comparing two interface values of the same uncomparable
// dynamic type panics at runtime, so such values never compare equal
// here.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return false
	}
	return a == b
}
