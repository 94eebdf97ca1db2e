package kvdb

import "errors"

// Sentinel errors returned by the public API. Load, IsExist and KFlags never
// return these for a simple missing key — absence is conveyed by a zero
// value / false, not an error.
var (
	// ErrNotFound is returned by Open when the database file does not exist.
	ErrNotFound = errors.New("voxelkv: database file not found")

	// ErrPermission is returned by Open or Create when the host refuses
	// access to the database file.
	ErrPermission = errors.New("voxelkv: permission denied")

	// ErrInvalidFormat is returned by Open when the file header carries an
	// unrecognised version, or the table chain is truncated or cyclic.
	ErrInvalidFormat = errors.New("voxelkv: invalid or corrupt file format")

	// ErrIO is returned when a read or write against an already-open file
	// fails for a reason other than a format problem.
	ErrIO = errors.New("voxelkv: i/o failure")

	// ErrNotOpen is returned by Save and Erase when called on a closed, or
	// never-opened, *DB. The reading methods (Load, IsExist, KFlags, Size,
	// ...) report a closed *DB as a zero value / false instead.
	ErrNotOpen = errors.New("voxelkv: database is not open")

	// ErrKeyTooLarge is returned when a caller-supplied key does not fit
	// within the database's configured key size.
	ErrKeyTooLarge = errors.New("voxelkv: key exceeds configured key size")
)
