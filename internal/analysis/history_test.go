package analysis

import "testing"

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Expected length 3, got %d", r.Len())
	}

	items := r.Items()
	expected := []int{3, 4, 5}
	for i := range expected {
		if items[i] != expected[i] {
			t.Errorf("Item %d: expected %d, got %d", i, expected[i], items[i])
		}
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Push(2)
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Expected empty ring after Clear, got %d", r.Len())
	}
	if len(r.Items()) != 0 {
		t.Errorf("Expected no items after Clear, got %v", r.Items())
	}

	r.Push(7)
	if items := r.Items(); len(items) != 1 || items[0] != 7 {
		t.Errorf("Expected [7] after reuse, got %v", items)
	}
}

func TestRingItemsIsCopy(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	items := r.Items()
	items[0] = 99

	if got := r.Items()[0]; got != 1 {
		t.Errorf("Expected ring unchanged by caller mutation, got %d", got)
	}
}
