package kvdb

import (
	"sort"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/go-cmp/cmp"
)

func TestDeletedKeyOrdersLargestFirstTieBreakByOffset(t *testing.T) {
	keys := []string{
		deletedKey(100, 50),
		deletedKey(300, 10),
		deletedKey(300, 5),
		deletedKey(50, 1),
	}
	// ascending string order should read: len300@5, len300@10, len100@50, len50@1
	want := []string{keys[2], keys[1], keys[0], keys[3]}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	if diff := cmp.Diff(want, sorted); diff != "" {
		t.Fatalf("ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogueFindFittingTombstonePrefersLargestThenSmallestOffset(t *testing.T) {
	cat := newCatalogue(DefaultKeySize)
	tbl := &tableDescriptor{occupied: bitset.New(8)}

	mk := func(entryPos int64, initialLen uint64) *slotDescriptor {
		return &slotDescriptor{
			entryPos: entryPos,
			entry:    keyEntryRecord{initialDataLength: initialLen, key: make([]byte, DefaultKeySize)},
			table:    tbl,
			index:    uint64(entryPos),
		}
	}

	a := mk(200, 100) // smaller region, later offset
	b := mk(10, 300)  // largest region, earliest offset among the 300s
	c := mk(20, 300)  // largest region, later offset

	cat.pushDeleted(a)
	cat.pushDeleted(b)
	cat.pushDeleted(c)

	got, ok := cat.findFittingTombstone(250)
	if !ok {
		t.Fatalf("expected a fitting tombstone")
	}
	if got != b {
		t.Fatalf("expected slot b (largest, smallest offset), got entryPos=%d", got.entryPos)
	}

	cat.removeDeleted(b)
	got, ok = cat.findFittingTombstone(250)
	if !ok || got != c {
		t.Fatalf("expected slot c after removing b, got %+v ok=%v", got, ok)
	}
}

func TestSlotInfoOfCopiesKeyBytes(t *testing.T) {
	tbl := &tableDescriptor{occupied: bitset.New(1)}
	k := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	d := &slotDescriptor{
		entryPos: 64,
		entry: keyEntryRecord{
			key: k, dataPos: 128, dataLength: 5, initialDataLength: 5, flags: 3,
		},
		table: tbl,
	}

	info := slotInfoOf(d)

	want := SlotInfo{Key: k, EntryPos: 64, DataPos: 128, DataLength: 5, InitialDataLength: 5, Flags: 3}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	info.Key[0] = 0xff
	if k[0] == 0xff {
		t.Fatalf("slotInfoOf must copy the key, not alias the entry's backing array")
	}
}
