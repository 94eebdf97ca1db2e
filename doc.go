// Package kvdb is a small, embeddable, single-file key-value storage engine.
//
// It was originally built to persist sparse voxel chunks keyed by a
// 3-component integer coordinate, and keeps that shape: fixed-width binary
// keys (KeySize bytes, 12 by default — three int32s) map to variable-length
// binary values. One *DB talks to exactly one random-access file and is
// meant to be opened once per process; there is no networked or
// multi-process access, no crash journaling, and no ordered on-disk
// iteration — see the package-level constants and the Non-goals called out
// in SPEC_FULL.md for the full list.
//
// # File layout
//
//	+--------------------------------------------------------------+
//	| FILE HEADER (20 bytes)                                       |
//	|   version (4) | key_size (4) | timestamp (8) | end_of_hdr (4)|
//	+--------------------------------------------------------------+
//	| TABLE HEADER (16 bytes)                                      |
//	|   record_count (8) | next_table (8)                          |
//	+--------------------------------------------------------------+
//	| KEY ENTRY 0 .. record_count-1 (26+KeySize bytes each)         |
//	|   data_pos (8) | data_length (8) | initial_data_length (8)    |
//	|   key_bytes (KeySize) | flags (2)                             |
//	+--------------------------------------------------------------+
//	| ... more TABLE HEADER + KEY ENTRY runs, chained by            |
//	|     next_table, until a table with next_table == 0 ...        |
//	+--------------------------------------------------------------+
//	| VALUE PAYLOADS (appended as slots are filled; never moved)    |
//	+--------------------------------------------------------------+
//
// Every multi-byte field is written little-endian with encoding/binary's
// binary.LittleEndian, whatever the host's own byte order (see
// SPEC_FULL.md §4.1).
//
// A key entry is classified purely from its two length fields and its
// data_pos:
//
//	data_length == 0 && initial_data_length == 0 && data_pos == 0  -> reserved
//	data_length == 0 && initial_data_length == 0 && data_pos == 1  -> live, empty value
//	data_length == 0 && initial_data_length >  0                   -> tombstoned
//	data_length >  0                                               -> live
//
// Reserved slots are handed out from a FIFO queue on insert; tombstoned
// slots are tried first, largest payload region first, so a new value can
// reuse an existing region without growing the file. See allocator.go.
package kvdb
