// Package statekit lets independent component instances share reactive
// state through a process-wide key/value registry.
//
// Any component can read or write a named value; components that have
// read a value are asked to refresh the bound property when it changes,
// and registered listeners observe every accepted write. The heavy
// lifting lives in pkg/registry; pkg/prop provides the property-binding
// adapter. This package is a convenience facade over the process-wide
// default registry:
//
//	statekit.Set("count", 1)
//	v := statekit.GetOr("count", 0)
//
//	remove := statekit.AddListener("count", func(value, old any) {
//	    log.Println("count changed:", old, "->", value)
//	})
//	defer remove()
//
// The default registry lives for the duration of the process. Tests that
// touch it should call Reset between cases.
package statekit

import "github.com/statekit-dev/statekit/pkg/registry"

// Re-exported registry types, so simple callers need only this package.
type (
	// Registry owns shared values, subscriptions, and listeners.
	Registry = registry.Registry

	// Component is anything that can be asked to refresh a property.
	Component = registry.Component

	// ListenerFunc observes accepted writes to one key.
	ListenerFunc = registry.ListenerFunc

	// HasChangedFunc is a per-key change predicate.
	HasChangedFunc = registry.HasChangedFunc

	// ObserverFunc observes accepted writes across all keys.
	ObserverFunc = registry.ObserverFunc
)

// New creates an independent registry. Most applications use the
// package-level functions, which share the process-wide default.
func New(opts ...registry.Option) *Registry {
	return registry.New(opts...)
}

// Default returns the process-wide registry backing the package-level
// functions.
func Default() *Registry {
	return registry.Default()
}

// Get returns the stored value for key, or nil when the key was never
// set.
func Get(key string) any {
	return registry.Default().Get(key)
}

// GetOr returns the stored value for key, or def when the key was never
// set.
func GetOr(key string, def any) any {
	return registry.Default().GetOr(key, def)
}

// Lookup returns the stored value for key and whether one has been set.
func Lookup(key string) (any, bool) {
	return registry.Default().Lookup(key)
}

// Set stores value under key if it counts as a change, then notifies
// listeners and subscribed components.
func Set(key string, value any) {
	registry.Default().Set(key, value)
}

// ForceSet stores value under key bypassing the equality check.
func ForceSet(key string, value any) {
	registry.Default().ForceSet(key, value)
}

// SetHasChanged installs the change predicate for key; nil restores the
// default.
func SetHasChanged(key string, fn HasChangedFunc) {
	registry.Default().SetHasChanged(key, fn)
}

// Register subscribes c to key under the given property names, or under
// the key itself when none are given.
func Register(key string, c Component, properties ...string) {
	registry.Default().Register(key, c, properties...)
}

// Unregister removes c from key's subscribers entirely.
func Unregister(key string, c Component) {
	registry.Default().Unregister(key, c)
}

// UnregisterComponent removes c from every key's subscribers.
func UnregisterComponent(c Component) {
	registry.Default().UnregisterComponent(c)
}

// AddListener adds fn as a listener for key, returning a closure that
// removes it.
func AddListener(key string, fn ListenerFunc) func() {
	return registry.Default().AddListener(key, fn)
}

// RemoveListener removes fn from key's listeners by function identity.
func RemoveListener(key string, fn ListenerFunc) {
	registry.Default().RemoveListener(key, fn)
}

// Observe adds fn as a registry-wide observer of accepted writes,
// returning a closure that removes it.
func Observe(fn ObserverFunc) func() {
	return registry.Default().Observe(fn)
}

// RequestUpdate asks every component subscribed to key to refresh.
func RequestUpdate(key string, oldValue any, force bool) {
	registry.Default().RequestUpdate(key, oldValue, force)
}

// FindRequestUpdate returns the property names c is subscribed to for
// key, or false when not subscribed.
func FindRequestUpdate(key string, c Component) ([]string, bool) {
	return registry.Default().FindRequestUpdate(key, c)
}

// Reset restores the default registry to its empty state. Intended for
// test isolation.
func Reset() {
	registry.Default().Reset()
}
