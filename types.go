package pzst

import (
	"github.com/pzst/pzst/internal/format"
)

// Compression identifies the codec used for an archive's frames.
type Compression uint8

const (
	// CompressionZstd compresses blocks as zstd frames. This is the
	// default.
	CompressionZstd = Compression(format.CodecZstd)

	// CompressionLZ4 compresses blocks as lz4 frames.
	CompressionLZ4 = Compression(format.CodecLZ4)
)

// String returns the human-readable name of the compression algorithm.
func (c Compression) String() string {
	return format.CodecID(c).String()
}

// Entry describes one archive member and its placement in the block
// sequence.
type Entry struct {
	// Path is the member name after GNU long-name and PAX overrides.
	Path string

	// Type is the tar typeflag byte.
	Type byte

	// Size is the member's declared payload size in bytes.
	Size uint64

	// StartBlock is the sequence number of the block holding the member's
	// header; StartOffset is the header's offset within that block's
	// uncompressed content.
	StartBlock  int
	StartOffset uint64

	// EndBlock and EndOffset locate the end (exclusive) of the member's
	// last padded payload record.
	EndBlock  int
	EndOffset uint64
}

// Block describes one independently compressed block of the data region.
type Block struct {
	// Seq is the block's position in the data region.
	Seq int

	// CompOffset and CompSize locate the block's compressed frame in the
	// archive stream.
	CompOffset uint64
	CompSize   uint64

	// RawSize is the uncompressed length of the block.
	RawSize uint64

	// Checksum is the CRC-64/ISO of the uncompressed block bytes.
	Checksum uint64
}

// WriteStats reports the outcome of a Compress call.
type WriteStats struct {
	// Blocks is the number of data blocks written.
	Blocks int

	// Entries is the number of archive members indexed (zero unless
	// TarFormat was set).
	Entries int

	// RawBytes is the total uncompressed input size.
	RawBytes uint64

	// CompressedBytes is the total output size including the index and
	// trailer.
	CompressedBytes uint64
}

// ExtractStats reports the outcome of an Extract call.
type ExtractStats struct {
	// Entries is the number of requested members that were extracted.
	Entries int

	// BlocksRead is the number of data blocks decompressed.
	BlocksRead int

	// BytesRead is the number of compressed data bytes read from the
	// source, excluding the index.
	BytesRead uint64

	// BytesWritten is the number of uncompressed bytes surfaced to the
	// destination.
	BytesWritten uint64
}
