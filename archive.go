package pzst

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/tidwall/btree"

	"github.com/pzst/pzst/internal/codec"
	"github.com/pzst/pzst/internal/format"
)

// ByteSource is a random-access archive source. os.File and
// bytes.Reader both satisfy it.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	maxDecoderMemory uint64
	logger           *slog.Logger
}

// WithMaxDecoderMemory caps the window memory a decoder may allocate
// per decompression. Frames declaring a larger window fail to decode.
func WithMaxDecoderMemory(n uint64) OpenOption {
	return func(c *openConfig) { c.maxDecoderMemory = n }
}

// WithLogger sets the logger used by the archive. Defaults to discard.
func WithLogger(l *slog.Logger) OpenOption {
	return func(c *openConfig) { c.logger = l }
}

// Archive is a read-only view over a pzst archive backed by a
// ByteSource. It is safe for concurrent use.
type Archive struct {
	src    ByteSource
	codec  codec.Codec
	pool   *codec.DecoderPool
	logger *slog.Logger

	blocks    []Block
	rawStarts []uint64
	entries   []Entry
	byPath    *btree.BTreeG[Entry]
}

// Open reads the trailer and index from src and returns an Archive.
//
// A source that ends in anything other than a valid trailer frame fails
// with ErrNoIndex; a trailer or index that is present but damaged fails
// with ErrIndexCorrupt.
func Open(src ByteSource, opts ...OpenOption) (*Archive, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	trailer, err := readTrailer(src)
	if err != nil {
		return nil, err
	}

	cdc, err := codec.ForID(trailer.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	size := uint64(src.Size())
	if trailer.IndexOffset > size || trailer.IndexCompSize > size-trailer.IndexOffset {
		return nil, fmt.Errorf("%w: index region out of bounds", ErrIndexCorrupt)
	}

	pool := codec.NewDecoderPool(cdc, cfg.maxDecoderMemory)
	raw, err := readIndexPayload(src, pool, trailer)
	if err != nil {
		return nil, err
	}

	idx, err := format.LoadIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	if idx.Codec() != trailer.Codec {
		return nil, fmt.Errorf("%w: index codec %d does not match trailer codec %d",
			ErrIndexCorrupt, idx.Codec(), trailer.Codec)
	}

	a := &Archive{
		src:    src,
		codec:  cdc,
		pool:   pool,
		logger: cfg.logger,
	}
	if err := a.materialize(idx, size, trailer); err != nil {
		return nil, err
	}

	a.log().Debug("archive opened",
		"codec", cdc.ID().String(),
		"blocks", len(a.blocks),
		"entries", len(a.entries),
	)
	return a, nil
}

func (a *Archive) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.DiscardHandler)
}

// materialize copies the index into native slices, validates block
// geometry, and builds the path lookup tree.
func (a *Archive) materialize(idx *format.Index, size uint64, trailer format.Trailer) error {
	a.blocks = make([]Block, 0, idx.BlocksLen())
	a.rawStarts = make([]uint64, 0, idx.BlocksLen()+1)

	var rawPos, compPos uint64
	seq := 0
	for blk := range idx.Blocks() {
		if blk.CompOffset != compPos {
			return fmt.Errorf("%w: block %d offset %d, want %d", ErrIndexCorrupt, seq, blk.CompOffset, compPos)
		}
		if blk.CompSize > size-blk.CompOffset {
			return fmt.Errorf("%w: block %d extends past end of source", ErrIndexCorrupt, seq)
		}
		a.rawStarts = append(a.rawStarts, rawPos)
		a.blocks = append(a.blocks, Block{
			Seq:        seq,
			CompOffset: blk.CompOffset,
			CompSize:   blk.CompSize,
			RawSize:    blk.RawSize,
			Checksum:   blk.Checksum,
		})
		rawPos += blk.RawSize
		compPos += blk.CompSize
		seq++
	}
	a.rawStarts = append(a.rawStarts, rawPos)

	if trailer.IndexOffset < compPos {
		return fmt.Errorf("%w: index overlaps block data", ErrIndexCorrupt)
	}

	a.entries = make([]Entry, 0, idx.EntriesLen())
	a.byPath = btree.NewBTreeG(func(x, y Entry) bool { return x.Path < y.Path })
	for e := range idx.Entries() {
		if int(e.StartBlock) >= len(a.blocks) || int(e.EndBlock) >= len(a.blocks) {
			return fmt.Errorf("%w: entry %q references missing block", ErrIndexCorrupt, e.Path)
		}
		if e.StartOffset >= a.blocks[e.StartBlock].RawSize || e.EndOffset > a.blocks[e.EndBlock].RawSize {
			return fmt.Errorf("%w: entry %q offsets exceed block size", ErrIndexCorrupt, e.Path)
		}
		// Resolved coordinates must describe a forward, non-empty span;
		// every member occupies at least its header record.
		start := a.rawStarts[e.StartBlock] + e.StartOffset
		end := a.rawStarts[e.EndBlock] + e.EndOffset
		if end <= start {
			return fmt.Errorf("%w: entry %q span is inverted", ErrIndexCorrupt, e.Path)
		}
		ent := Entry{
			Path:        e.Path,
			Type:        e.Type,
			Size:        e.Size,
			StartBlock:  int(e.StartBlock),
			StartOffset: e.StartOffset,
			EndBlock:    int(e.EndBlock),
			EndOffset:   e.EndOffset,
		}
		a.entries = append(a.entries, ent)
		a.byPath.Set(ent)
	}
	return nil
}

// List returns all entries in archive order. Non-tar archives have no
// entries and return an empty slice.
func (a *Archive) List() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Entries iterates entries in archive order without copying the slice.
func (a *Archive) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range a.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Lookup returns the entry with the given path.
func (a *Archive) Lookup(path string) (Entry, bool) {
	return a.byPath.Get(Entry{Path: path})
}

// Blocks returns the block table in file order.
func (a *Archive) Blocks() []Block {
	out := make([]Block, len(a.blocks))
	copy(out, a.blocks)
	return out
}

// Compression returns the codec the archive was written with.
func (a *Archive) Compression() Compression {
	return Compression(a.codec.ID())
}

// RawSize returns the total uncompressed size of the block data.
func (a *Archive) RawSize() uint64 {
	return a.rawStarts[len(a.rawStarts)-1]
}

// readTrailer reads and validates the trailing skippable frame.
func readTrailer(src ByteSource) (format.Trailer, error) {
	size := src.Size()
	if size < format.TrailerFrameSize {
		return format.Trailer{}, ErrNoIndex
	}

	buf := make([]byte, format.TrailerFrameSize)
	if _, err := src.ReadAt(buf, size-format.TrailerFrameSize); err != nil {
		return format.Trailer{}, fmt.Errorf("read trailer: %w", err)
	}

	length, err := format.ParseSkippableHeader(buf[:8])
	if err != nil || length != format.TrailerSize {
		return format.Trailer{}, ErrNoIndex
	}
	return format.DecodeTrailer(buf[8:])
}

// readIndexPayload decompresses the index payload described by the trailer.
func readIndexPayload(src ByteSource, pool *codec.DecoderPool, trailer format.Trailer) ([]byte, error) {
	comp := make([]byte, trailer.IndexCompSize)
	if _, err := src.ReadAt(comp, int64(trailer.IndexOffset)); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	dec, release, err := pool.Get(bytes.NewReader(comp))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	defer release()

	raw := make([]byte, trailer.IndexRawSize)
	if _, err := io.ReadFull(dec, raw); err != nil {
		return nil, fmt.Errorf("%w: decompress index: %v", ErrIndexCorrupt, err)
	}
	return raw, nil
}
