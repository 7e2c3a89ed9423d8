package ring

import (
	"testing"
)

func TestPushWithinCapacity(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 3; i++ {
		if evicted := b.Push(i); evicted {
			t.Fatalf("Push(%d) evicted before full", i)
		}
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	got := b.Slice()
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Slice()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPushEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	got := b.Slice()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Slice()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	last, ok := b.Last()
	if !ok || last != 5 {
		t.Errorf("Last = %d, %v; want 5, true", last, ok)
	}
}

func TestLastEmpty(t *testing.T) {
	b := New[string](2)
	if _, ok := b.Last(); ok {
		t.Error("Last on empty buffer reported ok")
	}
}

func TestEachReverseStopsEarly(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 6; i++ {
		b.Push(i)
	}
	var seen []int
	b.EachReverse(func(v int) bool {
		seen = append(seen, v)
		return len(seen) < 2
	})
	if len(seen) != 2 || seen[0] != 6 || seen[1] != 5 {
		t.Errorf("EachReverse visited %v, want [6 5]", seen)
	}
}

func TestMinimumCapacity(t *testing.T) {
	b := New[int](0)
	if b.Cap() != 1 {
		t.Fatalf("Cap = %d, want 1", b.Cap())
	}
	b.Push(1)
	b.Push(2)
	if v, _ := b.Last(); v != 2 || b.Len() != 1 {
		t.Errorf("buffer = %v, want [2]", b.Slice())
	}
}
