package format

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailerRoundTrip(t *testing.T) {
	t.Parallel()

	in := Trailer{
		Version:       Version,
		Codec:         CodecZstd,
		IndexOffset:   1 << 33,
		IndexCompSize: 4096,
		IndexRawSize:  9999,
	}
	buf := EncodeTrailer(in)

	out, err := DecodeTrailer(buf[:])
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTrailerWrongMagic(t *testing.T) {
	t.Parallel()

	buf := EncodeTrailer(Trailer{Version: Version, Codec: CodecZstd})
	buf[0] = 'x'

	_, err := DecodeTrailer(buf[:])
	require.ErrorIs(t, err, ErrNoTrailer)
}

func TestTrailerCorruptChecksum(t *testing.T) {
	t.Parallel()

	buf := EncodeTrailer(Trailer{Version: Version, Codec: CodecLZ4, IndexOffset: 100})

	// Any bit flip in the covered region must be caught.
	for _, pos := range []int{9, 10, 16, 31, 39} {
		damaged := buf
		damaged[pos] ^= 0x80
		_, err := DecodeTrailer(damaged[:])
		assert.ErrorIs(t, err, ErrTrailerCorrupt, "flip at byte %d", pos)
	}
}

func TestTrailerUnsupportedVersion(t *testing.T) {
	t.Parallel()

	buf := EncodeTrailer(Trailer{Version: Version + 1, Codec: CodecZstd})
	_, err := DecodeTrailer(buf[:])
	require.ErrorIs(t, err, ErrTrailerCorrupt)
}

func TestTrailerShortBuffer(t *testing.T) {
	t.Parallel()

	_, err := DecodeTrailer(make([]byte, TrailerSize-1))
	require.ErrorIs(t, err, ErrTrailerCorrupt)
}

func TestSkippableFrame(t *testing.T) {
	t.Parallel()

	payload := []byte("index bytes")
	var buf bytes.Buffer
	n, err := WriteSkippableFrame(&buf, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload)+8, n)
	assert.Equal(t, buf.Len(), n)

	length, err := ParseSkippableHeader(buf.Bytes()[:8])
	require.NoError(t, err)
	assert.Equal(t, uint32(len(payload)), length)
	assert.Equal(t, payload, buf.Bytes()[8:])
}

func TestParseSkippableHeaderRejectsDataFrame(t *testing.T) {
	t.Parallel()

	// zstd data frame magic is not a skippable frame.
	hdr := []byte{0x28, 0xB5, 0x2F, 0xFD, 0, 0, 0, 0}
	_, err := ParseSkippableHeader(hdr)
	require.ErrorIs(t, err, ErrNoTrailer)

	_, err = ParseSkippableHeader(hdr[:4])
	require.ErrorIs(t, err, ErrNoTrailer)
}

func TestParseSkippableHeaderAcceptsVariants(t *testing.T) {
	t.Parallel()

	// All sixteen low-nibble variants are valid skippable magics.
	hdr := []byte{0x57, 0x2A, 0x4D, 0x18, 0x10, 0, 0, 0}
	length, err := ParseSkippableHeader(hdr)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10), length)
}

func TestIndexRoundTrip(t *testing.T) {
	t.Parallel()

	blocks := []Block{
		{CompOffset: 0, CompSize: 1000, RawSize: 4096, Checksum: 0xDEADBEEF},
		{CompOffset: 1000, CompSize: 900, RawSize: 4096, Checksum: 42},
		{CompOffset: 1900, CompSize: 50, RawSize: 100, Checksum: 7},
	}
	entries := []Entry{
		{Path: "a/b.txt", Type: '0', Size: 3000, StartBlock: 0, StartOffset: 0, EndBlock: 0, EndOffset: 4096},
		{Path: "c", Type: '5', Size: 0, StartBlock: 1, StartOffset: 0, EndBlock: 1, EndOffset: 512},
		{Path: "d/e/f", Type: '0', Size: 200, StartBlock: 1, StartOffset: 512, EndBlock: 2, EndOffset: 100},
	}

	data := BuildIndex(CodecZstd, blocks, entries)
	idx, err := LoadIndex(data)
	require.NoError(t, err)

	assert.Equal(t, CodecZstd, idx.Codec())
	assert.Equal(t, len(blocks), idx.BlocksLen())
	assert.Equal(t, len(entries), idx.EntriesLen())
	assert.Equal(t, blocks, slices.Collect(idx.Blocks()))
	assert.Equal(t, entries, slices.Collect(idx.Entries()))
}

func TestIndexEmpty(t *testing.T) {
	t.Parallel()

	data := BuildIndex(CodecLZ4, nil, nil)
	idx, err := LoadIndex(data)
	require.NoError(t, err)

	assert.Equal(t, CodecLZ4, idx.Codec())
	assert.Zero(t, idx.BlocksLen())
	assert.Zero(t, idx.EntriesLen())
}

func TestLoadIndexRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":     nil,
		"short":     {1, 2, 3},
		"garbage":   bytes.Repeat([]byte{0xFF}, 64),
		"truncated": BuildIndex(CodecZstd, []Block{{RawSize: 1}}, nil)[:10],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadIndex(data)
			assert.Error(t, err)
		})
	}
}
