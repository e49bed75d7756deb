package registry

import (
	"math"
	"testing"
)

func TestDefaultHasChanged(t *testing.T) {
	type pair struct{ A, B int }
	shared := &pair{}

	tests := []struct {
		name     string
		newValue any
		oldValue any
		changed  bool
	}{
		{"equal ints", 1, 1, false},
		{"different ints", 1, 2, true},
		{"equal strings", "a", "a", false},
		{"different strings", "a", "b", true},
		{"both nil", nil, nil, false},
		{"nil to value", 1, nil, true},
		{"value to nil", nil, 1, true},
		{"both NaN", math.NaN(), math.NaN(), false},
		{"both NaN float32", float32(math.NaN()), float32(math.NaN()), false},
		{"NaN to number", 1.0, math.NaN(), true},
		{"number to NaN", math.NaN(), 1.0, true},
		{"same pointer", shared, shared, false},
		{"different pointers same contents", &pair{A: 1}, &pair{A: 1}, true},
		{"equal structs", pair{A: 1}, pair{A: 1}, false},
		{"different types", 1, "1", true},
		{"int vs int64", 1, int64(1), true},
		{"slices never identical", []int{1}, []int{1}, true},
		{"maps never identical", map[string]int{}, map[string]int{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultHasChanged(tt.newValue, tt.oldValue); got != tt.changed {
				t.Errorf("DefaultHasChanged(%v, %v) = %v, want %v",
					tt.newValue, tt.oldValue, got, tt.changed)
			}
		})
	}
}

func TestDefaultHasChangedDoesNotPanicOnMixedComparability(t *testing.T) {
	// Comparing a comparable value against a non-comparable one must not
	// panic; they are simply not identical.
	if !DefaultHasChanged([]int{1}, 1) {
		t.Error("Expected slice vs int to count as changed")
	}
	if !DefaultHasChanged(map[string]int{}, []int{1}) {
		t.Error("Expected map vs slice to count as changed")
	}
}
