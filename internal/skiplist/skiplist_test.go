package skiplist

import (
	"math/rand"
	"testing"
)

func init() {
	rand.Seed(1)
}

func TestEmptyList(t *testing.T) {
	l := New[int, string]()
	if l.Len() != 0 {
		t.Fatalf("expected size 0, got %d", l.Len())
	}
	if _, ok := l.Get(1); ok {
		t.Fatalf("expected not found in empty list")
	}
	if _, ok := l.First(); ok {
		t.Fatalf("expected no First() in empty list")
	}
}

func TestPutAndGet(t *testing.T) {
	l := New[int, string]()
	l.Put(10, "ten")

	val, ok := l.Get(10)
	if !ok || val != "ten" {
		t.Fatalf("expected (ten,true), got (%v,%v)", val, ok)
	}
}

func TestPutOverwrite(t *testing.T) {
	l := New[int, string]()
	l.Put(1, "one")
	l.Put(1, "uno")

	val, ok := l.Get(1)
	if !ok || val != "uno" {
		t.Fatalf("overwrite failed, got (%v,%v)", val, ok)
	}
	if l.Len() != 1 {
		t.Fatalf("expected size 1, got %d", l.Len())
	}
}

func TestDeleteDecrementsSize(t *testing.T) {
	l := New[int, int]()
	for i := 0; i < 100; i++ {
		l.Put(i, i)
	}
	for i := 0; i < 100; i += 2 {
		l.Delete(i)
	}
	if l.Len() != 50 {
		t.Fatalf("expected size 50 after deleting half, got %d", l.Len())
	}
	for i := 0; i < 100; i++ {
		_, ok := l.Get(i)
		if i%2 == 0 && ok {
			t.Fatalf("key %d should be deleted", i)
		}
		if i%2 == 1 && !ok {
			t.Fatalf("key %d should exist", i)
		}
	}
}

func TestFirstTracksSmallest(t *testing.T) {
	l := New[int, int]()
	for _, k := range []int{5, 3, 9, 1, 7} {
		l.Put(k, k*10)
	}
	rec, ok := l.First()
	if !ok || rec.Key != 1 || rec.Value != 10 {
		t.Fatalf("expected First()=(1,10), got (%d,%d,%v)", rec.Key, rec.Value, ok)
	}
	l.Delete(1)
	rec, ok = l.First()
	if !ok || rec.Key != 3 {
		t.Fatalf("expected First()=3 after deleting 1, got (%d,%v)", rec.Key, ok)
	}
}

func TestAllAscending(t *testing.T) {
	l := New[int, int]()
	for i := 0; i < 2000; i++ {
		l.Put(rand.Intn(10000), i)
	}

	prev := -1 << 31
	count := 0
	for rec := range l.All() {
		if rec.Key < prev {
			t.Fatalf("iteration out of order: %d < %d", rec.Key, prev)
		}
		prev = rec.Key
		count++
	}
	if count != l.Len() {
		t.Fatalf("iteration count mismatch: got %d want %d", count, l.Len())
	}
}

func TestAllEarlyStop(t *testing.T) {
	l := New[int, int]()
	for i := 0; i < 100; i++ {
		l.Put(i, i)
	}

	count := 0
	for range l.All() {
		count++
		if count == 10 {
			break
		}
	}
	if count != 10 {
		t.Fatalf("expected early stop at 10, got %d", count)
	}
}

// TestOrderPreservingStringKey exercises the ~string composite-key trick
// catalogue.go's deletedKey relies on: packing two uint64 fields into a
// fixed-width string whose ascending byte order matches the intended
// "largest first, ties broken by second field ascending" ordering.
func TestOrderPreservingStringKey(t *testing.T) {
	key := func(size, pos uint64) string {
		var buf [16]byte
		for i := 0; i < 8; i++ {
			buf[7-i] = byte(^size >> (8 * i))
		}
		for i := 0; i < 8; i++ {
			buf[15-i] = byte(pos >> (8 * i))
		}
		return string(buf[:])
	}

	l := New[string, string]()
	l.Put(key(100, 5), "a")
	l.Put(key(300, 1), "b")
	l.Put(key(300, 0), "c")
	l.Put(key(50, 2), "d")

	var order []string
	for rec := range l.All() {
		order = append(order, rec.Value)
	}

	want := []string{"c", "b", "a", "d"}
	if len(order) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, order, want)
		}
	}
}
