package phx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindingsFireInRegistrationOrder(t *testing.T) {
	r := newBindingRegistry()
	var order []string
	r.add("new_msg", func(*Message) { order = append(order, "first") })
	r.add("new_msg", func(*Message) { order = append(order, "second") })
	r.add("other", func(*Message) { order = append(order, "other") })

	for _, cb := range r.matching("new_msg") {
		cb(nil)
	}
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBindingsRemoveByHandle(t *testing.T) {
	r := newBindingRegistry()
	first := r.add("new_msg", func(*Message) {})
	second := r.add("new_msg", func(*Message) {})

	r.remove(first)
	assert.Equal(t, 1, r.len())

	// Removing twice is harmless.
	r.remove(first)
	assert.Equal(t, 1, r.len())

	r.remove(second)
	assert.Equal(t, 0, r.len())
}

func TestBindingsRemoveEvent(t *testing.T) {
	r := newBindingRegistry()
	r.add("new_msg", func(*Message) {})
	r.add("new_msg", func(*Message) {})
	kept := r.add("other", func(*Message) {})

	r.removeEvent("new_msg")
	assert.Equal(t, 1, r.len())
	assert.Len(t, r.matching("other"), 1)
	assert.Equal(t, "other", kept.Event())
}

func TestBindingsOnOffLeavesRegistryUnchanged(t *testing.T) {
	r := newBindingRegistry()
	r.add("a", func(*Message) {})
	before := r.len()

	sub := r.add("b", func(*Message) {})
	r.remove(sub)
	assert.Equal(t, before, r.len())
	assert.Empty(t, r.matching("b"))
}
