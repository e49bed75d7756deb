package registry

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Component is the capability the registry consumes: anything that can be
// asked to refresh one of its properties. The registry never inspects a
// component beyond this single call.
type Component interface {
	// RequestUpdate asks the component to refresh the named property.
	// oldValue is a hint carrying the previous value of the backing key,
	// or nil when there was no previous value or the write was forced.
	RequestUpdate(property string, oldValue any)
}

// ListenerFunc is a per-key callback invoked synchronously on every
// accepted write to that key.
type ListenerFunc func(newValue, oldValue any)

// HasChangedFunc is a per-key equality predicate. It reports whether
// newValue counts as a change from oldValue and therefore triggers
// notification. oldValue is nil when the key had no value yet.
type HasChangedFunc func(newValue, oldValue any) bool

// ObserverFunc is a registry-wide callback invoked after per-key listeners
// on every accepted write to any key.
type ObserverFunc func(key string, newValue, oldValue any)

// Recorder receives registry traffic for instrumentation.
// Implemented by the Prometheus collector in pkg/metrics.
type Recorder interface {
	// SetApplied records an accepted write and its duration.
	SetApplied(key string, d time.Duration)

	// SetSkipped records a write rejected by the equality check.
	SetSkipped(key string)

	// Notified records the fan-out of one accepted write: the number of
	// listener invocations and of component update requests.
	Notified(key string, listeners, updates int)

	// KeyCount records the number of keys holding a value.
	KeyCount(n int)
}

// subscription binds one component to a key under an ordered-unique list
// of property names.
type subscription struct {
	component  Component
	properties []string
}

// listenerEntry is a registered listener. id identifies the exact
// registration for the remove closure; ptr is the callback's function
// pointer, used to collapse duplicate registrations of the same callback.
type listenerEntry struct {
	id  uint64
	fn  ListenerFunc
	ptr uintptr
}

// observerEntry is a registered registry-wide observer.
type observerEntry struct {
	id uint64
	fn ObserverFunc
}

// Registry owns all shared values, subscriber maps, per-key equality
// functions, and listener sets, and drives notification.
//
// It is a plain service object: construct one with New, or use the
// package-wide Default registry. Reset restores the empty state for test
// isolation.
type Registry struct {
	mu sync.RWMutex

	// values holds the current value per key. A key is present only after
	// at least one accepted Set.
	values map[string]any

	// subscribers maps each key to its components in registration order.
	// No entry ever holds an empty property list.
	subscribers map[string][]*subscription

	// equality holds the per-key change predicates. At most one per key.
	equality map[string]HasChangedFunc

	// listeners maps each key to its callbacks in registration order.
	listeners map[string][]*listenerEntry

	// observers are registry-wide accepted-write callbacks.
	observers []*observerEntry

	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for debug-level operation logging.
// Without it the registry is silent.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRecorder sets the instrumentation sink for registry traffic.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		values:      make(map[string]any),
		subscribers: make(map[string][]*subscription),
		equality:    make(map[string]HasChangedFunc),
		listeners:   make(map[string][]*listenerEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// defaultRegistry is the process-wide registry used by the root statekit
// package. It lives for the duration of the process.
var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// =============================================================================
// Values
// =============================================================================

// Get returns the stored value for key if one has ever been set, including
// a stored nil, otherwise nil. Use Lookup to distinguish a stored nil from
// an absent key.
func (r *Registry) Get(key string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[key]
}

// GetOr returns the stored value for key, or def if the key was never set.
func (r *Registry) GetOr(key string, def any) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[key]; ok {
		return v
	}
	return def
}

// Lookup returns the stored value for key and whether one has been set.
func (r *Registry) Lookup(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// Set stores value under key if the key's equality predicate considers it
// a change, then synchronously fires the key's listeners, the registry
// observers, and an update request for every subscribed (component,
// property) pair. A write judged unchanged returns with no effect.
//
// Panics from user-supplied equality predicates, listeners, observers, or
// component RequestUpdate calls propagate to the caller, aborting the
// remaining notifications for this call.
func (r *Registry) Set(key string, value any) {
	r.set(key, value, false)
}

// ForceSet stores value under key bypassing the equality check, so
// listeners and subscribers are always notified. Component update requests
// from a forced write carry a nil old-value hint.
func (r *Registry) ForceSet(key string, value any) {
	r.set(key, value, true)
}

func (r *Registry) set(key string, value any, force bool) {
	start := time.Now()

	r.mu.Lock()
	rec := r.recorder
	old, hadOld := r.values[key]
	changed := force || r.hasChangedLocked(key, value, old, hadOld)
	if !changed {
		r.mu.Unlock()
		if rec != nil {
			rec.SetSkipped(key)
		}
		if r.logger != nil {
			r.logger.Debug("set skipped", "key", key)
		}
		return
	}

	r.values[key] = value

	// Snapshot under the lock so the iteration order for this call is
	// stable even if callbacks mutate the registry mid-notification.
	listeners := make([]ListenerFunc, 0, len(r.listeners[key]))
	for _, entry := range r.listeners[key] {
		listeners = append(listeners, entry.fn)
	}
	observers := make([]ObserverFunc, 0, len(r.observers))
	for _, entry := range r.observers {
		observers = append(observers, entry.fn)
	}
	subs := snapshotSubscriptions(r.subscribers[key])
	keyCount := len(r.values)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debug("set applied", "key", key, "force", force,
			"listeners", len(listeners), "subscribers", len(subs))
	}

	// Listeners fire first, then observers, then component updates.
	// Notification happens outside the lock so callbacks may re-enter
	// the registry.
	for _, fn := range listeners {
		fn(value, old)
	}
	for _, fn := range observers {
		fn(key, value, old)
	}

	hint := old
	if force {
		// A forced write has no meaningful prior value to offer.
		hint = nil
	}
	updates := dispatchUpdates(subs, hint)

	if rec != nil {
		rec.SetApplied(key, time.Since(start))
		rec.Notified(key, len(listeners), updates)
		rec.KeyCount(keyCount)
	}
}

// hasChangedLocked evaluates the change predicate for key. A custom
// predicate always decides, receiving a nil old value for an unset key.
// Under the default predicate the first write to a key always counts as a
// change, so the value is stored even when it is nil.
func (r *Registry) hasChangedLocked(key string, value, old any, hadOld bool) bool {
	if fn, ok := r.equality[key]; ok && fn != nil {
		return fn(value, old)
	}
	if !hadOld {
		return true
	}
	return DefaultHasChanged(value, old)
}

// SetHasChanged installs the equality predicate for key, replacing any
// previous one. A nil fn restores the default predicate.
func (r *Registry) SetHasChanged(key string, fn HasChangedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.equality, key)
		return
	}
	r.equality[key] = fn
}

// =============================================================================
// Subscriptions
// =============================================================================

// Register subscribes c to key under each of the given property names, so
// qualifying writes to key trigger one RequestUpdate per property. With no
// properties the key itself is used as the property name. Registering an
// already-present (key, component, property) triple has no further effect.
func (r *Registry) Register(key string, c Component, properties ...string) {
	if c == nil {
		return
	}
	if len(properties) == 0 {
		properties = []string{key}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub := findSubscription(r.subscribers[key], c)
	if sub == nil {
		sub = &subscription{component: c}
		r.subscribers[key] = append(r.subscribers[key], sub)
	}
	for _, property := range properties {
		if property == "" {
			property = key
		}
		if !containsString(sub.properties, property) {
			sub.properties = append(sub.properties, property)
		}
	}

	if r.logger != nil {
		r.logger.Debug("component registered", "key", key, "properties", sub.properties)
	}
}

// Unregister removes c from key's subscriber map entirely, dropping all of
// its property names at once. No-op if c is not subscribed.
func (r *Registry) Unregister(key string, c Component) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(key, c)
}

// UnregisterComponent removes c from every key's subscriber map. Use this
// for full component teardown.
func (r *Registry) UnregisterComponent(c Component) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.subscribers {
		r.unregisterLocked(key, c)
	}
}

func (r *Registry) unregisterLocked(key string, c Component) {
	subs := r.subscribers[key]
	for i, sub := range subs {
		if sub.component == c {
			r.subscribers[key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subscribers[key]) == 0 {
		delete(r.subscribers, key)
	}
}

// FindRequestUpdate returns the property names c is subscribed to for key,
// in registration order, or false if c is not subscribed.
func (r *Registry) FindRequestUpdate(key string, c Component) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub := findSubscription(r.subscribers[key], c)
	if sub == nil {
		return nil, false
	}
	properties := make([]string, len(sub.properties))
	copy(properties, sub.properties)
	return properties, true
}

// RequestUpdate asks every (component, property) pair subscribed to key to
// refresh, passing oldValue as the previous-value hint. When force is true
// the hint is nil, since a forced update has no meaningful prior value.
func (r *Registry) RequestUpdate(key string, oldValue any, force bool) {
	r.mu.RLock()
	subs := snapshotSubscriptions(r.subscribers[key])
	r.mu.RUnlock()

	if force {
		oldValue = nil
	}
	dispatchUpdates(subs, oldValue)
}

// =============================================================================
// Listeners and observers
// =============================================================================

// AddListener adds fn as a listener for key and returns a closure that
// removes exactly that registration. Calling the closure more than once is
// a no-op.
//
// Duplicate registrations collapse by function identity, which for Go
// closures is the code pointer: two closures created from the same
// function literal count as the same listener even when they capture
// different variables. Callers that need several instances of one literal
// on the same key should wrap each in its own named function.
func (r *Registry) AddListener(key string, fn ListenerFunc) func() {
	if fn == nil {
		return func() {}
	}

	entry := &listenerEntry{
		id:  nextID(),
		fn:  fn,
		ptr: reflect.ValueOf(fn).Pointer(),
	}

	r.mu.Lock()
	deduped := false
	for _, existing := range r.listeners[key] {
		if existing.ptr == entry.ptr {
			entry = existing
			deduped = true
			break
		}
	}
	if !deduped {
		r.listeners[key] = append(r.listeners[key], entry)
	}
	r.mu.Unlock()

	id := entry.id
	return func() {
		r.removeListenerByID(key, id)
	}
}

// RemoveListener removes fn from key's listener set, matching by function
// identity. No-op if fn is not registered for key.
func (r *Registry) RemoveListener(key string, fn ListenerFunc) {
	if fn == nil {
		return
	}
	ptr := reflect.ValueOf(fn).Pointer()

	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.listeners[key]
	for i, entry := range entries {
		if entry.ptr == ptr {
			r.listeners[key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.listeners[key]) == 0 {
		delete(r.listeners, key)
	}
}

func (r *Registry) removeListenerByID(key string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.listeners[key]
	for i, entry := range entries {
		if entry.id == id {
			r.listeners[key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.listeners[key]) == 0 {
		delete(r.listeners, key)
	}
}

// Observe adds fn as a registry-wide observer of accepted writes and
// returns a closure removing it. Observers fire after the key's listeners
// and before component update requests. The inspector and metrics attach
// here.
func (r *Registry) Observe(fn ObserverFunc) func() {
	if fn == nil {
		return func() {}
	}

	entry := &observerEntry{id: nextID(), fn: fn}

	r.mu.Lock()
	r.observers = append(r.observers, entry)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, existing := range r.observers {
			if existing.id == entry.id {
				r.observers = append(r.observers[:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

// =============================================================================
// Introspection and lifecycle
// =============================================================================

// Keys returns the keys holding a value, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.values))
	for key := range r.values {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// ListenerCount returns the number of listeners registered for key.
func (r *Registry) ListenerCount(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[key])
}

// SubscriberCount returns the number of components subscribed to key.
func (r *Registry) SubscriberCount(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers[key])
}

// Reset restores the registry to its empty state: all values, subscribers,
// equality functions, listeners, and observers are dropped. Intended for
// test isolation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[string]any)
	r.subscribers = make(map[string][]*subscription)
	r.equality = make(map[string]HasChangedFunc)
	r.listeners = make(map[string][]*listenerEntry)
	r.observers = nil
}

// SetRecorder installs rec as the instrumentation sink, replacing any
// previous one. A nil rec disables instrumentation.
func (r *Registry) SetRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// =============================================================================
// Helpers
// =============================================================================

// snapshotSubscriptions copies the subscriber list with its property
// lists, so notification iterates a stable view.
func snapshotSubscriptions(subs []*subscription) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		properties := make([]string, len(sub.properties))
		copy(properties, sub.properties)
		out = append(out, subscription{component: sub.component, properties: properties})
	}
	return out
}

// dispatchUpdates issues one RequestUpdate per (component, property) pair
// and returns the number of requests issued.
func dispatchUpdates(subs []subscription, oldValue any) int {
	updates := 0
	for _, sub := range subs {
		for _, property := range sub.properties {
			sub.component.RequestUpdate(property, oldValue)
			updates++
		}
	}
	return updates
}

func findSubscription(subs []*subscription, c Component) *subscription {
	for _, sub := range subs {
		if sub.component == c {
			return sub
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
