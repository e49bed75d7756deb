// Package registry implements a process-wide key/value registry for
// reactive shared state.
//
// Independent component instances read and write named values through a
// Registry. Components that have read a value are asked to refresh the
// bound property when it changes, and externally registered listeners are
// invoked on every accepted write. Change detection uses strict identity
// by default (two NaNs count as equal) and can be overridden per key.
//
// Usage:
//
//	reg := registry.New()
//
//	// Components subscribe lazily, typically via pkg/prop.
//	reg.Register("count", cmp)
//
//	remove := reg.AddListener("count", func(value, old any) {
//	    fmt.Println("count:", old, "->", value)
//	})
//	defer remove()
//
//	reg.Set("count", 1) // fires listeners, then component updates
//	reg.Set("count", 1) // no-op: value unchanged
//
// All operations execute synchronously; every side effect of Set happens
// before Set returns. A Registry is safe for concurrent use. Subscriptions
// are never removed automatically: components must call Unregister or
// UnregisterComponent on teardown, or they keep receiving updates.
package registry
