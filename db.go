package kvdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/natefinch/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrDuplicateKey is returned by Create when initial contains the same key
// twice — the live index requires unique keys (§3).
var ErrDuplicateKey = fmt.Errorf("voxelkv: duplicate key in initial contents: %w", ErrInvalidFormat)

// DB is one open handle on a voxelkv file. All exported methods lock db.mu
// for their whole duration (§5): there are no internal goroutines and no
// operation yields while holding the lock.
type DB struct {
	mu   sync.Mutex
	path string
	file *os.File
	open bool

	keySize           int
	reservedTableSize int
	reservedValueSize int

	log *zap.SugaredLogger
	cat *catalogue
}

// InitialPair seeds a freshly created database with a live key/value pair,
// per Create's initial_pairs parameter (§4.2).
type InitialPair struct {
	Key   []byte
	Value []byte
	Flags uint16
}

func normalizeKey(key []byte, keySize int) ([]byte, error) {
	if len(key) > keySize {
		return nil, ErrKeyTooLarge
	}
	out := make([]byte, keySize)
	copy(out, key)
	return out, nil
}

// Create builds a fresh database file at path (§4.2). The whole file is
// staged in memory and installed with a single atomic rename
// (github.com/natefinch/atomic, grounded in the rename-into-place pattern
// _examples/theflywheel-phash uses for its own resize-via-tmp-file), so a
// process that dies mid-Create leaves either nothing or a complete file —
// never a half-written one. This is an install-time guarantee only; it is
// not the crash-consistency journaling that spec.md's Non-goals exclude.
func Create(path string, initial []InitialPair, opts ...Option) error {
	cfg := applyOptions(opts)
	keySize := cfg.keySize

	type preparedPair struct {
		key   []byte
		value []byte
		flags uint16
	}

	prepared := make([]preparedPair, len(initial))
	seen := make(map[string]bool, len(initial))
	for i, p := range initial {
		key, err := normalizeKey(p.Key, keySize)
		if err != nil {
			return err
		}
		ks := string(key)
		if seen[ks] {
			return ErrDuplicateKey
		}
		seen[ks] = true
		prepared[i] = preparedPair{key: key, value: p.Value, flags: p.Flags}
	}

	recordCount := uint64(cfg.reservedTableSize)
	if uint64(len(prepared)) > recordCount {
		recordCount = uint64(len(prepared))
	}

	var buf bytes.Buffer
	if err := writeFileHeader(&buf, fileHeaderRecord{
		version:     formatVersion,
		keySize:     uint32(keySize),
		timestamp:   timeNowUnix(),
		endOfHeader: fileHeaderSize,
	}); err != nil {
		return err
	}
	if err := writeTableHeader(&buf, tableHeaderRecord{recordCount: recordCount, nextTable: 0}); err != nil {
		return err
	}

	entrySize := keyEntrySize(keySize)
	valueRegionStart := int64(buf.Len()) + int64(recordCount)*int64(entrySize)

	var values bytes.Buffer
	cumulative := int64(0)
	for _, p := range prepared {
		var e keyEntryRecord
		e.key = p.key
		e.flags = p.flags
		if len(p.value) == 0 {
			e.dataPos = liveDataPosEmpty
		} else {
			e.dataPos = uint64(valueRegionStart + cumulative)
			e.dataLength = uint64(len(p.value))
			e.initialDataLength = e.dataLength
			values.Write(p.value)
			cumulative += int64(len(p.value))
		}
		if err := writeKeyEntry(&buf, e, keySize); err != nil {
			return err
		}
	}
	for i := uint64(len(prepared)); i < recordCount; i++ {
		if err := writeKeyEntry(&buf, keyEntryRecord{key: make([]byte, keySize)}, keySize); err != nil {
			return err
		}
	}
	buf.Write(values.Bytes())

	if err := atomic.WriteFile(path, &buf); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("voxelkv: create %q: %w", path, ErrPermission)
		}
		return fmt.Errorf("voxelkv: create %q: %w", path, ErrIO)
	}
	return nil
}

// timeNowUnix is split out so the informational timestamp field has one
// call site; the field is never read back by this package (§3: "creation
// time, informational").
func timeNowUnix() int64 {
	return time.Now().Unix()
}

// Open opens an existing database file, walking its table chain to
// rebuild the live index, reserved queue and deleted set (§4.2).
func Open(path string, opts ...Option) (*DB, error) {
	cfg := applyOptions(opts)

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("voxelkv: open %q: %w", path, ErrNotFound)
		case os.IsPermission(err):
			return nil, fmt.Errorf("voxelkv: open %q: %w", path, ErrPermission)
		default:
			return nil, fmt.Errorf("voxelkv: open %q: %w", path, ErrIO)
		}
	}

	db, err := loadFromFile(f, path, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	db.log.Infow("opened database",
		"path", path, "live", len(db.cat.live), "reserved", len(db.cat.reserved),
		"deleted", db.cat.deleted.Len(), "tables", len(db.cat.tables))
	return db, nil
}

func loadFromFile(f *os.File, path string, cfg engineConfig) (*DB, error) {
	fh, err := readFileHeader(f)
	if err != nil {
		return nil, fmt.Errorf("voxelkv: read file header: %w", ErrInvalidFormat)
	}
	if fh.version != formatVersion {
		return nil, fmt.Errorf("voxelkv: file header has version %d, want %d: %w", fh.version, formatVersion, ErrInvalidFormat)
	}

	keySize := int(fh.keySize)
	cat := newCatalogue(keySize)

	visited := make(map[int64]bool)
	pos := int64(fh.endOfHeader)

	for pos != 0 {
		if visited[pos] {
			return nil, fmt.Errorf("voxelkv: table chain revisits offset %d: %w", pos, ErrInvalidFormat)
		}
		visited[pos] = true

		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return nil, fmt.Errorf("voxelkv: seek table header at %d: %w", pos, ErrIO)
		}
		th, err := readTableHeader(f)
		if err != nil {
			return nil, fmt.Errorf("voxelkv: read table header at %d: %w", pos, ErrInvalidFormat)
		}

		tbl := &tableDescriptor{headerPos: pos, header: th, occupied: bitset.New(uint(th.recordCount))}

		for i := uint64(0); i < th.recordCount; i++ {
			entryPos, err := f.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, fmt.Errorf("voxelkv: tell position in table at %d: %w", pos, ErrIO)
			}
			e, err := readKeyEntry(f, keySize)
			if err != nil {
				return nil, fmt.Errorf("voxelkv: read key entry at %d: %w", entryPos, ErrInvalidFormat)
			}

			d := &slotDescriptor{entryPos: entryPos, entry: e, table: tbl, index: i}
			switch classify(e) {
			case classLive:
				cat.live[string(e.key)] = d
				cat.markOccupied(d, true)
			case classTombstoned:
				cat.pushDeleted(d)
				cat.markOccupied(d, true)
			case classReserved:
				cat.pushReserved(d)
				cat.markOccupied(d, false)
			default:
				return nil, fmt.Errorf("voxelkv: slot at %d has inconsistent length fields: %w", entryPos, ErrInvalidFormat)
			}
		}

		cat.tables = append(cat.tables, tbl)
		pos = int64(th.nextTable)
	}

	return &DB{
		path:              path,
		file:              f,
		open:              true,
		keySize:           keySize,
		reservedTableSize: cfg.reservedTableSize,
		reservedValueSize: cfg.reservedValueSize,
		log:               cfg.logger,
		cat:               cat,
	}, nil
}

// Close releases the file handle and clears all in-memory collections.
// Idempotent on an already-closed or never-opened instance — guarding
// against the bug noted in spec.md §9(b), where one revision of the
// original dereferenced the file handle unconditionally.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return nil
	}
	db.open = false

	var errs error
	if err := db.file.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("voxelkv: close %q: %w", db.path, err))
	}
	db.cat.reset()
	db.log.Infow("closed database", "path", db.path)
	return errs
}

// IsOpen reports whether the instance has an open file handle.
func (db *DB) IsOpen() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.open
}

// Size returns the number of live keys, 0 if not open.
func (db *DB) Size() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return 0
	}
	return len(db.cat.live)
}

// Reserved returns the number of never-used slots, 0 if not open.
func (db *DB) Reserved() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return 0
	}
	return len(db.cat.reserved)
}

// Deleted returns the number of tombstoned slots, 0 if not open.
func (db *DB) Deleted() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open {
		return 0
	}
	return db.cat.deleted.Len()
}

// Save inserts or updates key with value and flags (§4.3).
func (db *DB) Save(key, value []byte, flags uint16) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return ErrNotOpen
	}
	nkey, err := normalizeKey(key, db.keySize)
	if err != nil {
		return err
	}
	keyStr := string(nkey)

	if d, ok := db.cat.live[keyStr]; ok {
		return db.change(d, keyStr, nkey, value, flags)
	}
	return db.addNew(keyStr, nkey, value, flags)
}

// Load returns the bytes currently stored under key, or (nil, false) if
// key is absent or the database is closed. The returned slice is freshly
// allocated on every call and does not alias engine memory. A failed
// payload read is logged and also reported as (nil, false); Load returns
// no error.
func (db *DB) Load(key []byte) ([]byte, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return nil, false
	}
	nkey, err := normalizeKey(key, db.keySize)
	if err != nil {
		return nil, false
	}
	d, ok := db.cat.live[string(nkey)]
	if !ok {
		return nil, false
	}
	if d.entry.dataLength == 0 {
		return []byte{}, true
	}
	out := make([]byte, d.entry.dataLength)
	if _, err := db.file.ReadAt(out, int64(d.entry.dataPos)); err != nil {
		db.log.Errorw("load: read payload failed", "key", nkey, "err", err)
		return nil, false
	}
	return out, true
}

// LoadTyped decodes the bytes stored under key into a fixed-size,
// byte-copyable V (§4.5's "convenience overload"). For a value type that
// is itself a raw byte buffer, use Load directly instead.
func LoadTyped[V any](db *DB, key []byte) (V, bool, error) {
	var out V
	data, ok := db.Load(key)
	if !ok {
		return out, false, nil
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &out); err != nil {
		return out, false, fmt.Errorf("voxelkv: decode value as %T: %w", out, err)
	}
	return out, true, nil
}

// Erase removes key. A no-op, not an error, if key is already absent.
func (db *DB) Erase(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return ErrNotOpen
	}
	nkey, err := normalizeKey(key, db.keySize)
	if err != nil {
		return err
	}
	keyStr := string(nkey)
	d, ok := db.cat.live[keyStr]
	if !ok {
		return nil
	}
	return db.erasePairLocked(d, keyStr)
}

// KFlags returns the flags of the live slot for key, or 0 if absent.
func (db *DB) KFlags(key []byte) uint16 {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return 0
	}
	nkey, err := normalizeKey(key, db.keySize)
	if err != nil {
		return 0
	}
	if d, ok := db.cat.live[string(nkey)]; ok {
		return d.entry.flags
	}
	return 0
}

// IsExist is a live-index membership test.
func (db *DB) IsExist(key []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return false
	}
	nkey, err := normalizeKey(key, db.keySize)
	if err != nil {
		return false
	}
	_, ok := db.cat.live[string(nkey)]
	return ok
}

// ForEachKey visits every live key in unspecified order, under the lock.
// Stops early if visit returns false.
func (db *DB) ForEachKey(visit func(key []byte) bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return
	}
	for k := range db.cat.live {
		if !visit([]byte(k)) {
			return
		}
	}
}

// Info snapshots the three slot categories for debugging, each sorted by
// file offset for a deterministic diagnostic ordering.
func (db *DB) Info() (active, reserved, deleted []SlotInfo) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return nil, nil, nil
	}
	for _, d := range db.cat.live {
		active = append(active, slotInfoOf(d))
	}
	for _, d := range db.cat.reserved {
		reserved = append(reserved, slotInfoOf(d))
	}
	for rec := range db.cat.deleted.All() {
		deleted = append(deleted, slotInfoOf(rec.Value))
	}
	sort.Sort(byEntryPos(active))
	sort.Sort(byEntryPos(reserved))
	sort.Sort(byEntryPos(deleted))
	return active, reserved, deleted
}

// writeEntryAt rewrites the key entry at pos in place.
func (db *DB) writeEntryAt(pos int64, e keyEntryRecord) error {
	if _, err := db.file.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("voxelkv: seek key entry at %d: %w", pos, ErrIO)
	}
	if err := writeKeyEntry(db.file, e, db.keySize); err != nil {
		return fmt.Errorf("voxelkv: write key entry at %d: %w", pos, ErrIO)
	}
	return nil
}

// appendValue writes value at the end of the file, zero-padded to
// regionSize bytes, and returns the offset it was written at.
func (db *DB) appendValue(value []byte, regionSize int) (int64, error) {
	pos, err := db.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("voxelkv: seek end to append value: %w", ErrIO)
	}
	if len(value) > 0 {
		if _, err := db.file.Write(value); err != nil {
			return 0, fmt.Errorf("voxelkv: append value: %w", ErrIO)
		}
	}
	if pad := regionSize - len(value); pad > 0 {
		if _, err := db.file.Write(make([]byte, pad)); err != nil {
			return 0, fmt.Errorf("voxelkv: pad reserved region: %w", ErrIO)
		}
	}
	return pos, nil
}

// writeValueAt overwrites the first len(value) bytes of the payload region
// at pos. Used both for in-place rewrites and for promoting a tombstone.
func (db *DB) writeValueAt(pos int64, value []byte) error {
	if len(value) == 0 {
		return nil
	}
	if _, err := db.file.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("voxelkv: seek payload at %d: %w", pos, ErrIO)
	}
	if _, err := db.file.Write(value); err != nil {
		return fmt.Errorf("voxelkv: write payload at %d: %w", pos, ErrIO)
	}
	return nil
}
