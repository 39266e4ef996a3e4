package codec

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/pzst/pzst/internal/format"
)

type zstdCodec struct{}

func (zstdCodec) ID() format.CodecID { return format.CodecZstd }

// WindowSize follows the encoder window the mapped zstd level would use.
// Block sizing only needs a stable per-level value, not an exact match of
// the encoder's internal choice.
func (zstdCodec) WindowSize(level int) int {
	switch {
	case level <= 2:
		return 4 << 20
	case level <= 6:
		return 8 << 20
	default:
		return 16 << 20
	}
}

func (c zstdCodec) NewEncoder(level int) (Encoder, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithWindowSize(c.WindowSize(level)),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return enc, nil
}

func (zstdCodec) NewDecoder(r io.Reader, maxMemory uint64) (Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(false),
	}
	if maxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(maxMemory))
	}
	dec, err := zstd.NewReader(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return dec, nil
}
