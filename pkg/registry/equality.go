package registry

import (
	"math"
	"reflect"
)

// DefaultHasChanged is the change predicate used for keys without a custom
// equality function. Two values count as unchanged only when they are
// strictly identical, or when both are NaN.
//
// Values of non-comparable dynamic type (slices, maps, functions) are
// never identical, so writing a fresh composite value always counts as a
// change. Install a custom predicate with SetHasChanged when structural
// comparison is wanted.
func DefaultHasChanged(newValue, oldValue any) bool {
	if identical(newValue, oldValue) {
		return false
	}
	if isNaN(newValue) && isNaN(oldValue) {
		return false
	}
	return true
}

// identical reports strict identity between two values without panicking
// on non-comparable dynamic types.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

// isNaN reports whether v is a floating-point NaN.
func isNaN(v any) bool {
	switch n := v.(type) {
	case float64:
		return math.IsNaN(n)
	case float32:
		return math.IsNaN(float64(n))
	default:
		return false
	}
}
