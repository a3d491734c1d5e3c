package ringbuf

import (
	"reflect"
	"testing"
)

func TestRing_PushWithinCapacity(t *testing.T) {
	r := NewRing[int](4)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	if got := r.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if got := r.Iter(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("Iter() = %v, want [1 2 3]", got)
	}
	latest, ok := r.Latest()
	if !ok || latest != 3 {
		t.Fatalf("Latest() = (%d, %v), want (3, true)", latest, ok)
	}
}

func TestRing_OverwritesOldestWhenFull(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if got := r.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if got := r.Iter(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("Iter() = %v, want [3 4 5]", got)
	}
}

func TestRing_EmptyLatest(t *testing.T) {
	r := NewRing[string](2)
	if _, ok := r.Latest(); ok {
		t.Fatalf("Latest() on empty ring returned ok=true")
	}
}

func TestRing_MinOfKAndCapacityInvariant(t *testing.T) {
	r := NewRing[int](100)
	for k := 0; k < 250; k++ {
		r.Push(k)
		want := k + 1
		if want > 100 {
			want = 100
		}
		if got := r.Len(); got != want {
			t.Fatalf("after %d pushes, Len() = %d, want %d", k+1, got, want)
		}
		latest, ok := r.Latest()
		if !ok || latest != k {
			t.Fatalf("after %d pushes, Latest() = (%d, %v), want (%d, true)", k+1, latest, ok, k)
		}
	}
}
