package kvdb

import (
	"encoding/binary"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/flashkv/voxelkv/internal/skiplist"
)

// slotDescriptor is the in-memory handle for one on-disk key entry: the
// file offset it lives at, plus a cached copy of its current contents.
// There is exactly one slotDescriptor per slot; it migrates between the
// live index, the reserved queue and the deleted set as the slot's state
// changes, but is never copied into a second, independently-mutable
// instance — see SPEC_FULL.md §10 on aliased descriptors.
type slotDescriptor struct {
	entryPos int64
	entry    keyEntryRecord

	// table and index locate this slot within its table's occupied
	// bitmap, so flipping the diagnostic bit on allocation/erase never
	// needs to search the table list.
	table *tableDescriptor
	index uint64
}

// tableDescriptor is the in-memory record of one on-disk table.
type tableDescriptor struct {
	headerPos int64
	header    tableHeaderRecord

	// occupied tracks, per slot index within this table, whether the slot
	// is live or tombstoned (bit set) vs. reserved (bit clear). It is pure
	// diagnostic bookkeeping — see SPEC_FULL.md §3 — derived from, and
	// kept in lock-step with, the classification already implied by the
	// reserved queue / live index / deleted set membership.
	occupied *bitset.BitSet
}

// deletedKey packs (initial_data_length, entry_pos) into a fixed-width,
// order-preserving string: ascending string order over this key is
// exactly "largest initial_data_length first, ties broken by smallest
// entry_pos", which is the iteration order §4.3 requires. Encoding it as
// a string (rather than, say, a struct) is what lets the generic skip
// list — constrained to skiplist.Ordered, which includes ~string — hold
// the composite order without any special-casing.
func deletedKey(initialDataLength uint64, entryPos int64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], ^initialDataLength)
	binary.BigEndian.PutUint64(buf[8:16], uint64(entryPos))
	return string(buf[:])
}

// catalogue is the full set of in-memory collections derived from the
// file on open (§3): the live index, the reserved FIFO, the largest-first
// deleted set, and the table chain.
type catalogue struct {
	keySize int

	live     map[string]*slotDescriptor
	reserved []*slotDescriptor
	deleted  *skiplist.List[string, *slotDescriptor]
	tables   []*tableDescriptor
}

func newCatalogue(keySize int) *catalogue {
	return &catalogue{
		keySize: keySize,
		live:    make(map[string]*slotDescriptor),
		deleted: skiplist.New[string, *slotDescriptor](),
	}
}

func (c *catalogue) reset() {
	c.live = make(map[string]*slotDescriptor)
	c.reserved = nil
	c.deleted = skiplist.New[string, *slotDescriptor]()
	c.tables = nil
}

func (c *catalogue) pushReserved(d *slotDescriptor) {
	c.reserved = append(c.reserved, d)
}

// popReserved pops the front (oldest) reserved slot, FIFO, matching §4.3
// step 2's "pop the front reserved descriptor".
func (c *catalogue) popReserved() (*slotDescriptor, bool) {
	if len(c.reserved) == 0 {
		return nil, false
	}
	d := c.reserved[0]
	c.reserved = c.reserved[1:]
	return d, true
}

func (c *catalogue) pushDeleted(d *slotDescriptor) {
	c.deleted.Put(deletedKey(d.entry.initialDataLength, d.entryPos), d)
}

func (c *catalogue) removeDeleted(d *slotDescriptor) {
	c.deleted.Delete(deletedKey(d.entry.initialDataLength, d.entryPos))
}

// findFittingTombstone returns the largest-first tombstone whose reserved
// payload region is big enough for need bytes, per §4.3's tie-break rule.
func (c *catalogue) findFittingTombstone(need uint64) (*slotDescriptor, bool) {
	for rec := range c.deleted.All() {
		if rec.Value.entry.initialDataLength >= need {
			return rec.Value, true
		}
	}
	return nil, false
}

// markOccupied flips d's diagnostic occupancy bit in its table's bitmap:
// set when d is live or tombstoned, clear when d is reserved.
func (c *catalogue) markOccupied(d *slotDescriptor, occupied bool) {
	if occupied {
		d.table.occupied.Set(uint(d.index))
	} else {
		d.table.occupied.Clear(uint(d.index))
	}
}

// SlotInfo is a diagnostic snapshot of one slot, returned by (*DB).Info.
type SlotInfo struct {
	Key               []byte
	EntryPos          int64
	DataPos           uint64
	DataLength        uint64
	InitialDataLength uint64
	Flags             uint16
}

func slotInfoOf(d *slotDescriptor) SlotInfo {
	key := make([]byte, len(d.entry.key))
	copy(key, d.entry.key)
	return SlotInfo{
		Key:               key,
		EntryPos:          d.entryPos,
		DataPos:           d.entry.dataPos,
		DataLength:        d.entry.dataLength,
		InitialDataLength: d.entry.initialDataLength,
		Flags:             d.entry.flags,
	}
}

// byEntryPos sorts SlotInfo snapshots into a deterministic, file-order
// sequence for diagnostics. Adapted from the teacher's near-duplicate
// segmentmanager.SegmentEntries / segments.SegmentEntries sort.Interface
// implementations (both sorted by ascending integer id); this is the same
// shape generalized to sort by file offset instead of segment id.
type byEntryPos []SlotInfo

func (s byEntryPos) Len() int           { return len(s) }
func (s byEntryPos) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byEntryPos) Less(i, j int) bool { return s[i].EntryPos < s[j].EntryPos }

var _ sort.Interface = byEntryPos(nil)
