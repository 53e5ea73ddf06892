package flow

import "sync"

// Value is a publish-on-write holder for one widget's current input.
// The controller hands out exactly one Value per (formID, widgetID), so
// every observer of a widget shares a single source of truth.
type Value struct {
	mu       sync.Mutex
	current  any
	watchers []func(any)
}

// NewValue constructs a cell seeded with an initial value.
func NewValue(initial any) *Value {
	return &Value{current: initial}
}

// Get returns the current value.
func (v *Value) Get() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and notifies watchers.
func (v *Value) Set(next any) {
	v.mu.Lock()
	v.current = next
	watchers := make([]func(any), len(v.watchers))
	copy(watchers, v.watchers)
	v.mu.Unlock()

	for _, fn := range watchers {
		fn(next)
	}
}

// Watch registers a callback invoked on every Set.
func (v *Value) Watch(fn func(any)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.watchers = append(v.watchers, fn)
}
