// Package codec adapts single-stream compression codecs to the block
// pipeline. Every block is written as one complete frame of the selected
// codec, so each block is independently decompressible and a concatenation
// of blocks is a valid stream for that codec's regular decoder.
package codec

import (
	"fmt"
	"io"

	"github.com/pzst/pzst/internal/format"
)

// MinLevel and MaxLevel bound the accepted compression levels.
const (
	MinLevel = 1
	MaxLevel = 9
)

// Encoder writes one compressed frame per Reset/Write/Close cycle.
// Encoders are not safe for concurrent use; each pipeline worker owns one.
type Encoder interface {
	io.Writer

	// Reset directs the next frame to w. It must be called before the
	// first Write of every frame.
	Reset(w io.Writer)

	// Close flushes and terminates the current frame.
	Close() error
}

// Decoder reads one or more compressed frames.
type Decoder interface {
	io.Reader

	// Reset prepares the decoder to read a new stream from r.
	Reset(r io.Reader) error

	// Close releases decoder resources. The decoder cannot be used again.
	Close()
}

// Codec creates encoders and decoders for one frame format.
type Codec interface {
	// ID identifies the codec in the index and trailer.
	ID() format.CodecID

	// WindowSize returns the encoder window for the given level. The block
	// planner sizes blocks as a multiple of this value.
	WindowSize(level int) int

	// NewEncoder creates a detached encoder for the given level. Callers
	// must Reset it to a destination before writing.
	NewEncoder(level int) (Encoder, error)

	// NewDecoder creates a decoder reading from r. A zero maxMemory applies
	// no decoder memory limit. r may be nil; Reset before use.
	NewDecoder(r io.Reader, maxMemory uint64) (Decoder, error)
}

// ForID returns the codec implementation for an on-disk codec id.
func ForID(id format.CodecID) (Codec, error) {
	switch id {
	case format.CodecZstd:
		return zstdCodec{}, nil
	case format.CodecLZ4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("pzst: unknown codec id %d", id)
	}
}

// ValidLevel reports whether level is accepted by all codecs.
func ValidLevel(level int) bool {
	return level >= MinLevel && level <= MaxLevel
}
