// Package prop binds a component property to a shared registry key.
//
// A Prop is an explicit accessor pair produced at factory time: reading it
// lazily subscribes the owning component to the key and returns the
// registry value, writing it stores through the registry. The binding is
// configuration over the registry, not registry logic.
//
//	p := prop.Bind(reg, cmp, "count",
//	    prop.WithKey("counter"),
//	    prop.WithHasChanged(func(newValue, oldValue any) bool {
//	        return newValue != oldValue
//	    }))
//
//	v := p.Get()  // registers (counter, cmp, "count") on first read
//	p.Set(41)     // writes through; writing alone never registers
//
// Registration happens on the first read only, never at Bind time, so a
// component that never reads a bound property receives no updates for it.
// Call Unbind on component teardown; the registry does not detect
// component disposal on its own.
package prop

import (
	"sync/atomic"

	"github.com/statekit-dev/statekit/pkg/registry"
)

// Option configures a property binding.
type Option func(*options)

type options struct {
	key        string
	hasChanged registry.HasChangedFunc
}

// WithKey sets the registry key backing the property.
// When omitted, the property name itself is the key.
func WithKey(key string) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithHasChanged installs a change predicate for the backing key at Bind
// time. The predicate is per key, not per binding: the last Bind (or
// SetHasChanged call) for a key wins.
func WithHasChanged(fn registry.HasChangedFunc) Option {
	return func(o *options) {
		o.hasChanged = fn
	}
}

// Prop is one bound property accessor pair.
type Prop struct {
	reg      *registry.Registry
	owner    registry.Component
	property string
	key      string

	// registered flips on the first read and back on Unbind, so a later
	// read re-subscribes.
	registered atomic.Bool
}

// Bind creates a property binding for owner on reg. The returned Prop
// reads and writes the backing key; the owner is subscribed on first read.
func Bind(reg *registry.Registry, owner registry.Component, property string, opts ...Option) *Prop {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	key := o.key
	if key == "" {
		key = property
	}
	if o.hasChanged != nil {
		reg.SetHasChanged(key, o.hasChanged)
	}

	return &Prop{
		reg:      reg,
		owner:    owner,
		property: property,
		key:      key,
	}
}

// Key returns the registry key backing this property.
func (p *Prop) Key() string {
	return p.key
}

// Get subscribes the owner on first read and returns the current value,
// or nil when the key was never set.
func (p *Prop) Get() any {
	p.ensureRegistered()
	return p.reg.Get(p.key)
}

// GetOr subscribes the owner on first read and returns the current value,
// or def when the key was never set.
func (p *Prop) GetOr(def any) any {
	p.ensureRegistered()
	return p.reg.GetOr(p.key, def)
}

// Lookup subscribes the owner on first read and returns the current value
// and whether one has been set.
func (p *Prop) Lookup() (any, bool) {
	p.ensureRegistered()
	return p.reg.Lookup(p.key)
}

// Set writes the value through the registry. Writing does not subscribe
// the owner.
func (p *Prop) Set(value any) {
	p.reg.Set(p.key, value)
}

// ForceSet writes the value through the registry bypassing the equality
// check.
func (p *Prop) ForceSet(value any) {
	p.reg.ForceSet(p.key, value)
}

// Unbind unsubscribes the owner from the backing key. A later read
// subscribes again.
func (p *Prop) Unbind() {
	p.registered.Store(false)
	p.reg.Unregister(p.key, p.owner)
}

// ensureRegistered subscribes the owner exactly once per bound period.
// Register itself is idempotent, so a racing double call is harmless.
func (p *Prop) ensureRegistered() {
	if p.registered.CompareAndSwap(false, true) {
		p.reg.Register(p.key, p.owner, p.property)
	}
}

// Of is a typed view over a Prop.
type Of[T any] struct {
	prop *Prop
}

// As wraps a Prop with typed accessors. Values of a different dynamic type
// read as the zero value.
func As[T any](p *Prop) Of[T] {
	return Of[T]{prop: p}
}

// Prop returns the underlying untyped binding.
func (o Of[T]) Prop() *Prop {
	return o.prop
}

// Get returns the current value, or the zero value when the key is unset
// or holds a different type.
func (o Of[T]) Get() T {
	var zero T
	return o.GetOr(zero)
}

// GetOr returns the current value, or def when the key is unset or holds
// a different type.
func (o Of[T]) GetOr(def T) T {
	v, ok := o.prop.Lookup()
	if !ok {
		return def
	}
	t, ok := v.(T)
	if !ok {
		return def
	}
	return t
}

// Set writes the value through the registry.
func (o Of[T]) Set(value T) {
	o.prop.Set(value)
}

// ForceSet writes the value through the registry bypassing the equality
// check.
func (o Of[T]) ForceSet(value T) {
	o.prop.ForceSet(value)
}
