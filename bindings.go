package phx

import "sync"

// EventCallback is the signature for channel event subscribers.
type EventCallback func(msg *Message)

// Subscription is the removal handle returned by Channel.On. Removal is by
// handle identity so multiple subscribers may share an event name.
type Subscription struct {
	event string
	ref   int
}

// Event returns the event name this subscription listens on.
func (s Subscription) Event() string {
	return s.event
}

type binding struct {
	event    string
	ref      int
	callback EventCallback
}

// bindingRegistry holds a channel's event subscriptions in insertion order.
type bindingRegistry struct {
	mu       sync.Mutex
	bindings []binding
	nextRef  int
}

func newBindingRegistry() *bindingRegistry {
	return &bindingRegistry{}
}

func (r *bindingRegistry) add(event string, callback EventCallback) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextRef++
	r.bindings = append(r.bindings, binding{
		event:    event,
		ref:      r.nextRef,
		callback: callback,
	})
	return Subscription{event: event, ref: r.nextRef}
}

func (r *bindingRegistry) remove(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.bindings[:0]
	for _, b := range r.bindings {
		if b.event == sub.event && b.ref == sub.ref {
			continue
		}
		kept = append(kept, b)
	}
	r.bindings = kept
}

func (r *bindingRegistry) removeEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.bindings[:0]
	for _, b := range r.bindings {
		if b.event == event {
			continue
		}
		kept = append(kept, b)
	}
	r.bindings = kept
}

// matching returns the callbacks subscribed to event, in registration order.
// The returned slice is a copy so callers may invoke callbacks without
// holding the registry lock.
func (r *bindingRegistry) matching(event string) []EventCallback {
	r.mu.Lock()
	defer r.mu.Unlock()

	var callbacks []EventCallback
	for _, b := range r.bindings {
		if b.event == event {
			callbacks = append(callbacks, b.callback)
		}
	}
	return callbacks
}

func (r *bindingRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}
