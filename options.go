package pzst

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/pzst/pzst/internal/codec"
	"github.com/pzst/pzst/internal/format"
)

// Defaults applied by WriteOptions validation.
const (
	// DefaultLevel balances ratio against speed, matching the common
	// default preset of command-line compressors.
	DefaultLevel = 6

	// DefaultBlockFraction sizes blocks at twice the codec window.
	DefaultBlockFraction = 2.0

	// DefaultQueueDepth bounds the number of in-flight blocks.
	DefaultQueueDepth = 32

	// minBlockSize keeps degenerate block fractions from producing blocks
	// smaller than one tar record.
	minBlockSize = 512
)

// WriteOptions configures archive creation.
type WriteOptions struct {
	// Compression selects the codec. The zero value means CompressionZstd.
	Compression Compression

	// Level is the compression level, 1 (fastest) through 9 (strongest).
	// Zero means DefaultLevel.
	Level int

	// TarFormat enables tar-aware planning: member headers are kept whole
	// within a block and an entry index is built alongside the blocks.
	TarFormat bool

	// BlockFraction scales the target block size relative to the codec
	// window for the selected level. Must be positive. Zero means
	// DefaultBlockFraction. Larger values produce fewer, larger blocks
	// with a better ratio but coarser random access.
	BlockFraction float64

	// Workers caps the number of concurrent compression workers.
	// Zero uses the available hardware parallelism.
	Workers int

	// QueueDepth bounds the number of blocks in flight between the
	// planner and the writer. Memory use is roughly QueueDepth times the
	// block size. Zero means DefaultQueueDepth.
	QueueDepth int

	// Logger receives debug logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// pipelineConfig is a validated, defaulted copy of WriteOptions.
type pipelineConfig struct {
	codec      codec.Codec
	level      int
	tar        bool
	target     int
	workers    int
	queueDepth int
	logger     *slog.Logger
}

// validate checks the options and resolves defaults. Configuration errors
// are reported here, before any pipeline goroutine starts.
func (o WriteOptions) validate() (pipelineConfig, error) {
	cfg := pipelineConfig{
		level:      o.Level,
		tar:        o.TarFormat,
		workers:    o.Workers,
		queueDepth: o.QueueDepth,
		logger:     o.Logger,
	}

	compression := o.Compression
	if compression == 0 {
		compression = CompressionZstd
	}
	c, err := codec.ForID(format.CodecID(compression))
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.codec = c

	if cfg.level == 0 {
		cfg.level = DefaultLevel
	}
	if !codec.ValidLevel(cfg.level) {
		return cfg, fmt.Errorf("%w: level %d out of range [%d,%d]", ErrConfig, cfg.level, codec.MinLevel, codec.MaxLevel)
	}

	fraction := o.BlockFraction
	if fraction == 0 {
		fraction = DefaultBlockFraction
	}
	if fraction < 0 {
		return cfg, fmt.Errorf("%w: block fraction %v must be positive", ErrConfig, fraction)
	}
	cfg.target = int(float64(cfg.codec.WindowSize(cfg.level)) * fraction)
	if cfg.target < minBlockSize {
		cfg.target = minBlockSize
	}

	if cfg.workers < 0 {
		return cfg, fmt.Errorf("%w: workers %d must be non-negative", ErrConfig, cfg.workers)
	}
	if cfg.workers == 0 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}

	if cfg.queueDepth == 0 {
		cfg.queueDepth = DefaultQueueDepth
	}
	if cfg.queueDepth < 0 {
		return cfg, fmt.Errorf("%w: queue depth %d must be positive", ErrConfig, cfg.queueDepth)
	}

	return cfg, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c pipelineConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
