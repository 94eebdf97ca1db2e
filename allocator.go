package kvdb

import (
	"io"

	"github.com/bits-and-blooms/bitset"
)

// This file implements the allocator policy of §4.3/§4.4: where a new or
// grown value lands, in tombstone-reuse-first, then reserved-slot-consume,
// then grow-file order.

// addNew allocates a slot for a brand-new key (§4.3 "Save, key absent").
// Zero-length values always go through a reserved slot — never a reused
// tombstone — so that the written entry classifies back as "live, empty"
// (data_pos == liveDataPosEmpty, initial_data_length == 0) rather than as
// tombstoned on the next Open. A reused tombstone always carries
// initial_data_length > 0, which would misclassify such an entry; see
// DESIGN.md's "Open Question decisions".
func (db *DB) addNew(keyStr string, key []byte, value []byte, flags uint16) error {
	if len(value) == 0 {
		return db.addNewEmpty(keyStr, key, flags)
	}

	need := uint64(len(value))
	if d, ok := db.cat.findFittingTombstone(need); ok {
		return db.reuseTombstone(d, keyStr, key, value, flags)
	}
	if d, ok := db.cat.popReserved(); ok {
		return db.consumeReserved(d, keyStr, key, value, flags)
	}
	return db.growAndConsume(keyStr, key, value, flags)
}

// addNewEmpty allocates a slot for a new key whose value has zero length.
func (db *DB) addNewEmpty(keyStr string, key []byte, flags uint16) error {
	if d, ok := db.cat.popReserved(); ok {
		return db.consumeReserved(d, keyStr, key, nil, flags)
	}
	return db.growAndConsume(keyStr, key, nil, flags)
}

// reuseTombstone promotes a deleted slot d to live, writing value into its
// existing (larger-or-equal) payload region without moving any other
// slot (§4.3 step 1).
func (db *DB) reuseTombstone(d *slotDescriptor, keyStr string, key, value []byte, flags uint16) error {
	db.cat.removeDeleted(d)

	if err := db.writeValueAt(int64(d.entry.dataPos), value); err != nil {
		return err
	}

	d.entry.key = key
	d.entry.dataLength = uint64(len(value))
	d.entry.flags = flags
	if err := db.writeEntryAt(d.entryPos, d.entry); err != nil {
		return err
	}

	db.cat.live[keyStr] = d
	return nil
}

// consumeReserved promotes a reserved slot d to live, writing value into
// a freshly appended payload region (§4.3 step 2). A zero-length value gets
// no payload region at all (§4.4.1): data_pos is set to the liveDataPosEmpty
// sentinel and nothing is appended to the file.
func (db *DB) consumeReserved(d *slotDescriptor, keyStr string, key, value []byte, flags uint16) error {
	d.entry.key = key
	d.entry.flags = flags
	if len(value) == 0 {
		d.entry.dataPos = liveDataPosEmpty
		d.entry.dataLength = 0
		d.entry.initialDataLength = 0
	} else {
		regionSize := db.reservedRegionSize(uint64(len(value)))
		dataPos, err := db.appendValue(value, regionSize)
		if err != nil {
			return err
		}
		d.entry.dataPos = uint64(dataPos)
		d.entry.dataLength = uint64(len(value))
		d.entry.initialDataLength = uint64(regionSize)
	}
	if err := db.writeEntryAt(d.entryPos, d.entry); err != nil {
		return err
	}

	db.cat.markOccupied(d, true)
	db.cat.live[keyStr] = d
	return nil
}

// growAndConsume appends a new table of reserved slots (§4.3 step 3), then
// consumes the first of them for key/value.
func (db *DB) growAndConsume(keyStr string, key, value []byte, flags uint16) error {
	if err := db.growTable(); err != nil {
		return err
	}
	d, ok := db.cat.popReserved()
	if !ok {
		// growTable always adds at least one reserved slot; reaching here
		// would mean reservedTableSize was configured as 0.
		return ErrInvalidFormat
	}
	return db.consumeReserved(d, keyStr, key, value, flags)
}

// reservedRegionSize applies §4.4.2's reservation-expansion formula when
// reservedValueSize is configured and the value is smaller than it;
// otherwise the region is sized exactly to the value (no over-allocation).
//
// ceil(need/b + 1) * b, worked out in integer arithmetic as
// blocks = (need + 2b - 1) / b; size = blocks * b.
func (db *DB) reservedRegionSize(need uint64) int {
	b := uint64(db.reservedValueSize)
	if b == 0 || need >= b {
		return int(need)
	}
	blocks := (need + 2*b - 1) / b
	return int(blocks * b)
}

// change overwrites the value of an existing live key (§4.3 "Save, key
// present"). Per §4.3 Case B, updating a live key to an empty value erases
// it — becoming absent — rather than becoming a live empty value, which is
// reserved for an *insert* of an empty value (§4.4.1 "inserted, not
// updated"). Otherwise, if the new value fits in the slot's current
// payload region it is rewritten in place; if it doesn't, the slot is
// tombstoned and a fresh one is allocated, exactly as if the key were new.
func (db *DB) change(d *slotDescriptor, keyStr string, key, value []byte, flags uint16) error {
	if len(value) == 0 {
		return db.erasePairLocked(d, keyStr)
	}

	capacity := d.entry.initialDataLength
	if d.entry.dataPos == liveDataPosEmpty {
		capacity = 0
	}

	if uint64(len(value)) <= capacity {
		if err := db.writeValueAt(int64(d.entry.dataPos), value); err != nil {
			return err
		}
		d.entry.dataLength = uint64(len(value))
		d.entry.flags = flags
		return db.writeEntryAt(d.entryPos, d.entry)
	}

	if err := db.tombstone(d, keyStr); err != nil {
		return err
	}
	return db.addNew(keyStr, key, value, flags)
}

// tombstone converts a live slot into a deleted one, without touching its
// payload region (§4.3 "Erase").
func (db *DB) tombstone(d *slotDescriptor, keyStr string) error {
	delete(db.cat.live, keyStr)

	if d.entry.dataPos == liveDataPosEmpty {
		// An empty live value carries no payload region to recycle; it
		// reverts straight to reserved rather than becoming a zero-sized
		// tombstone that could never fit a future value anyway.
		d.entry.dataPos = 0
		d.entry.dataLength = 0
		d.entry.initialDataLength = 0
		if err := db.writeEntryAt(d.entryPos, d.entry); err != nil {
			return err
		}
		db.cat.markOccupied(d, false)
		db.cat.pushReserved(d)
		return nil
	}

	d.entry.dataLength = 0
	if err := db.writeEntryAt(d.entryPos, d.entry); err != nil {
		return err
	}
	db.cat.pushDeleted(d)
	return nil
}

// erasePairLocked removes a live key, tombstoning its slot (§4.3 "Erase").
// Named erasePairLocked because it assumes db.mu is already held, matching
// the teacher's *Locked suffix convention for callee helpers
// (segmentmanager/disk.go's rotateLocked).
func (db *DB) erasePairLocked(d *slotDescriptor, keyStr string) error {
	return db.tombstone(d, keyStr)
}

// growTable appends a new table of reservedTableSize reserved slots to the
// end of the file and patches the previous last table's next_table field
// to point at it (§4.2, §4.3 step 3). Grounded in record.go's seekPatch,
// itself adapted from the teacher's block-size and CRC patch-after-the-fact
// techniques.
func (db *DB) growTable() error {
	end, err := db.file.Seek(0, io.SeekEnd)
	if err != nil {
		return ErrIO
	}

	headerPos := end
	th := tableHeaderRecord{recordCount: uint64(db.reservedTableSize), nextTable: 0}
	if err := writeTableHeader(db.file, th); err != nil {
		return ErrIO
	}

	tbl := &tableDescriptor{headerPos: headerPos, header: th, occupied: bitset.New(uint(db.reservedTableSize))}

	for i := 0; i < db.reservedTableSize; i++ {
		entryPos, err := db.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return ErrIO
		}
		empty := keyEntryRecord{key: make([]byte, db.keySize)}
		if err := writeKeyEntry(db.file, empty, db.keySize); err != nil {
			return ErrIO
		}
		d := &slotDescriptor{entryPos: entryPos, entry: empty, table: tbl, index: uint64(i)}
		db.cat.pushReserved(d)
	}

	db.cat.tables = append(db.cat.tables, tbl)

	if len(db.cat.tables) > 1 {
		prev := db.cat.tables[len(db.cat.tables)-2]
		prev.header.nextTable = uint64(headerPos)
		nextTableFieldPos := prev.headerPos + 8 // record_count is the first 8 bytes
		if err := seekPatch(db.file, nextTableFieldPos, uint64(headerPos)); err != nil {
			return ErrIO
		}
		if _, err := db.file.Seek(0, io.SeekEnd); err != nil {
			return ErrIO
		}
	}

	return nil
}
