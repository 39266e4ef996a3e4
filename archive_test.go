package pzst

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenListMatchesTar(t *testing.T) {
	t.Parallel()

	members := []testMember{
		{name: "docs/readme.md", data: compressibleData(20, 3000)},
		{name: "bin/tool", data: compressibleData(21, 70_000)},
		{name: "empty.txt", data: nil},
		{name: "data/blob.bin", data: compressibleData(22, 600)},
	}
	input := buildTestTar(t, members)
	archive := compress(t, input, smallBlocks(WriteOptions{TarFormat: true}))

	a, err := Open(bytes.NewReader(archive))
	require.NoError(t, err)

	entries := a.List()
	require.Len(t, entries, len(members))
	for i, m := range members {
		assert.Equal(t, m.name, entries[i].Path)
		assert.Equal(t, uint64(len(m.data)), entries[i].Size)
		assert.Equal(t, byte(tar.TypeReg), entries[i].Type)
	}
}

func TestOpenEntriesIterator(t *testing.T) {
	t.Parallel()

	input := buildTestTar(t, []testMember{
		{name: "a", data: compressibleData(23, 100)},
		{name: "b", data: compressibleData(24, 100)},
	})
	a, err := Open(bytes.NewReader(compress(t, input, WriteOptions{TarFormat: true})))
	require.NoError(t, err)

	var names []string
	for e := range a.Entries() {
		names = append(names, e.Path)
	}
	assert.Equal(t, []string{"a", "b"}, names)

	// Early break must not panic or leak.
	for range a.Entries() {
		break
	}
}

func TestOpenLookup(t *testing.T) {
	t.Parallel()

	input := buildTestTar(t, []testMember{
		{name: "present", data: compressibleData(25, 100)},
	})
	a, err := Open(bytes.NewReader(compress(t, input, WriteOptions{TarFormat: true})))
	require.NoError(t, err)

	e, ok := a.Lookup("present")
	require.True(t, ok)
	assert.Equal(t, uint64(100), e.Size)

	_, ok = a.Lookup("absent")
	assert.False(t, ok)
}

func TestOpenBlockGeometry(t *testing.T) {
	t.Parallel()

	input := compressibleData(26, 50_000)
	a, err := Open(bytes.NewReader(compress(t, input, smallBlocks(WriteOptions{}))))
	require.NoError(t, err)

	blocks := a.Blocks()
	require.Greater(t, len(blocks), 1)

	var compPos, rawTotal uint64
	for i, b := range blocks {
		assert.Equal(t, i, b.Seq)
		assert.Equal(t, compPos, b.CompOffset, "blocks must be contiguous")
		assert.Positive(t, b.CompSize)
		assert.Positive(t, b.RawSize)
		compPos += b.CompSize
		rawTotal += b.RawSize
	}
	assert.Equal(t, uint64(len(input)), rawTotal)
	assert.Equal(t, rawTotal, a.RawSize())
}

func TestOpenNotAnArchive(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":          nil,
		"short":          []byte("tiny"),
		"plain text":     bytes.Repeat([]byte("not an archive at all "), 100),
		"zstd only":      compress(t, compressibleData(27, 1000), WriteOptions{})[:50],
		"zeros":          make([]byte, 4096),
		"trailer magic gone": func() []byte {
			a := compress(t, compressibleData(28, 1000), WriteOptions{})
			a[len(a)-56] ^= 0xFF // skippable frame magic of the trailer
			return a
		}(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(bytes.NewReader(data))
			require.ErrorIs(t, err, ErrNoIndex)
		})
	}
}

func TestOpenCorruptTrailer(t *testing.T) {
	t.Parallel()

	archive := compress(t, compressibleData(29, 10_000), smallBlocks(WriteOptions{}))

	// Flip one bit inside the checksummed trailer region.
	damaged := append([]byte(nil), archive...)
	damaged[len(damaged)-30] ^= 0x01

	_, err := Open(bytes.NewReader(damaged))
	require.ErrorIs(t, err, ErrIndexCorrupt)
}

func TestOpenCorruptIndexPayload(t *testing.T) {
	t.Parallel()

	input := buildTestTar(t, []testMember{{name: "f", data: compressibleData(30, 5000)}})
	archive := compress(t, input, smallBlocks(WriteOptions{TarFormat: true}))

	a, err := Open(bytes.NewReader(archive))
	require.NoError(t, err)
	blocks := a.Blocks()
	dataEnd := blocks[len(blocks)-1].CompOffset + blocks[len(blocks)-1].CompSize

	// Corrupt the compressed index frame, midway between the block data
	// and the trailer.
	damaged := append([]byte(nil), archive...)
	mid := dataEnd + (uint64(len(damaged)-56)-dataEnd)/2
	damaged[mid] ^= 0xFF

	_, err = Open(bytes.NewReader(damaged))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoIndex, "a damaged index is not the same as a missing one")
}

func TestOpenTruncatedArchive(t *testing.T) {
	t.Parallel()

	archive := compress(t, compressibleData(31, 20_000), smallBlocks(WriteOptions{}))

	// Cutting anywhere before the trailer removes it entirely.
	_, err := Open(bytes.NewReader(archive[:len(archive)-1]))
	require.ErrorIs(t, err, ErrNoIndex)

	_, err = Open(bytes.NewReader(archive[:len(archive)/2]))
	require.ErrorIs(t, err, ErrNoIndex)
}

func TestOpenWithMaxDecoderMemory(t *testing.T) {
	t.Parallel()

	archive := compress(t, compressibleData(32, 5000), WriteOptions{})
	a, err := Open(bytes.NewReader(archive), WithMaxDecoderMemory(64<<20))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = a.Extract(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, compressibleData(32, 5000), out.Bytes())
}

// countingSource counts ReadAt calls and bytes for I/O assertions.
type countingSource struct {
	data  []byte
	reads int
	bytes uint64
}

func (s *countingSource) ReadAt(p []byte, off int64) (int, error) {
	s.reads++
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	s.bytes += uint64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *countingSource) Size() int64 { return int64(len(s.data)) }
