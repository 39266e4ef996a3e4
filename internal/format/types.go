// Package format defines the on-disk layout of a pzst archive: the block
// and entry records carried by the index, the FlatBuffers index payload,
// and the fixed-size trailer that makes the index discoverable from the
// end of the stream.
package format

// Version is the current on-disk format version.
const Version = 1

// CodecID identifies the compression codec used for an archive's frames.
type CodecID uint8

const (
	CodecZstd CodecID = 1
	CodecLZ4  CodecID = 2
)

// String returns the human-readable name of the codec.
func (c CodecID) String() string {
	switch c {
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Block describes one independently compressed block of the data region.
// Blocks appear in the index in sequence order; a block's sequence number
// is its position in that list.
type Block struct {
	// CompOffset is the byte offset of the block's compressed frame in the
	// output stream.
	CompOffset uint64

	// CompSize is the length of the compressed frame in bytes.
	CompSize uint64

	// RawSize is the uncompressed length of the block in bytes.
	RawSize uint64

	// Checksum is the CRC-64/ISO of the uncompressed block bytes.
	Checksum uint64
}

// Entry describes one archive member of a tar-aware archive and its
// placement in the block sequence. Header records are never split across
// blocks, so StartBlock/StartOffset always locate a complete header.
type Entry struct {
	// Path is the member name after GNU long-name and PAX overrides.
	Path string

	// Type is the tar typeflag byte.
	Type byte

	// Size is the member's declared payload size in bytes.
	Size uint64

	// StartBlock is the sequence number of the block holding the member's
	// header, and StartOffset the header's byte offset within that block's
	// uncompressed content.
	StartBlock  uint32
	StartOffset uint64

	// EndBlock and EndOffset locate the end (exclusive) of the member's
	// last padded payload record.
	EndBlock  uint32
	EndOffset uint64
}
