package kvdb

import "go.uber.org/zap"

// DefaultKeySize is KEY_BYTES from the original voxel build: three int32
// coordinates.
const DefaultKeySize = 12

// DefaultReservedTableSize is how many reserved slots a freshly created
// table (the first one, or one appended by growth) is stocked with.
const DefaultReservedTableSize = 1000

// DefaultReservedValueSize disables reservation expansion (§4.4): brand
// new payload regions are sized exactly to the inserted value, with no
// over-allocation.
const DefaultReservedValueSize = 0

type engineConfig struct {
	keySize           int
	reservedTableSize int
	reservedValueSize int
	logger            *zap.SugaredLogger
}

func defaultConfig() engineConfig {
	return engineConfig{
		keySize:           DefaultKeySize,
		reservedTableSize: DefaultReservedTableSize,
		reservedValueSize: DefaultReservedValueSize,
		logger:            zap.NewNop().Sugar(),
	}
}

// Option configures a Create or Open call. Grounded in the teacher's
// segmentmanager.DiskSegmentManagerOption pattern (segmentmanager/disk.go).
type Option func(*engineConfig)

// WithKeySize sets KEY_BYTES for a database being created. Ignored by Open,
// which always trusts the key_size persisted in the file header.
func WithKeySize(n int) Option {
	return func(c *engineConfig) { c.keySize = n }
}

// WithReservedTableSize sets how many reserved slots go into the initial
// table (Create) and into every table appended later by growth (Open,
// Create). Defaults to DefaultReservedTableSize.
func WithReservedTableSize(n int) Option {
	return func(c *engineConfig) { c.reservedTableSize = n }
}

// WithReservedValueSize turns on reservation expansion (§4.4): a brand-new
// payload region for a value shorter than n bytes is padded to 2n bytes
// (ceil(len/n + 1) * n), trading disk space for fewer future
// tombstone-and-relocate cycles; a value of n bytes or more gets a region
// of exactly its own length. 0 (the default) disables expansion.
func WithReservedValueSize(n int) Option {
	return func(c *engineConfig) { c.reservedValueSize = n }
}

// WithLogger attaches a structured logger. The zero value logs nowhere.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func applyOptions(opts []Option) engineConfig {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
