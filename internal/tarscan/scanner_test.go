package tarscan

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTar assembles a tar stream with the standard library writer.
func buildTar(tb testing.TB, members []tarMember) []byte {
	tb.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		hdr := &tar.Header{
			Name:     m.name,
			Mode:     0o644,
			Size:     int64(len(m.data)),
			Typeflag: tar.TypeReg,
		}
		if m.typeflag != 0 {
			hdr.Typeflag = m.typeflag
			if m.typeflag == tar.TypeDir {
				hdr.Mode = 0o755
				hdr.Size = 0
			}
			if m.typeflag == tar.TypeSymlink {
				hdr.Linkname = m.link
				hdr.Size = 0
			}
		}
		require.NoError(tb, tw.WriteHeader(hdr))
		if len(m.data) > 0 {
			_, err := tw.Write(m.data)
			require.NoError(tb, err)
		}
	}
	require.NoError(tb, tw.Close())
	return buf.Bytes()
}

type tarMember struct {
	name     string
	data     []byte
	typeflag byte
	link     string
}

// scanAll drains the scanner, returning every item (with Data copied, since
// the scanner reuses its buffers) and the described files.
func scanAll(tb testing.TB, input []byte, max int) ([]Item, []File) {
	tb.Helper()

	s := NewScanner(bytes.NewReader(input))
	var items []Item
	var files []File
	for {
		item, err := s.Next(max)
		if err == io.EOF {
			return items, files
		}
		require.NoError(tb, err)
		item.Data = append([]byte(nil), item.Data...)
		items = append(items, item)
		if item.File != nil {
			files = append(files, *item.File)
		}
	}
}

func TestScannerRoundTrip(t *testing.T) {
	t.Parallel()

	input := buildTar(t, []tarMember{
		{name: "dir/", typeflag: tar.TypeDir},
		{name: "dir/a.txt", data: bytes.Repeat([]byte("alpha "), 100)},
		{name: "dir/empty"},
		{name: "link", typeflag: tar.TypeSymlink, link: "dir/a.txt"},
		{name: "dir/b.bin", data: bytes.Repeat([]byte{0xAB}, 1500)},
	})

	for _, max := range []int{64, 512, 999, 1 << 16} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			items, files := scanAll(t, input, max)

			var out bytes.Buffer
			for _, item := range items {
				out.Write(item.Data)
			}
			require.Equal(t, input, out.Bytes(), "concatenated items must reproduce the input")

			require.Len(t, files, 5)
			assert.Equal(t, "dir/", files[0].Name)
			assert.Equal(t, byte(tar.TypeDir), files[0].Type)
			assert.Equal(t, "dir/a.txt", files[1].Name)
			assert.Equal(t, uint64(600), files[1].Size)
			assert.Equal(t, "dir/empty", files[2].Name)
			assert.Equal(t, uint64(0), files[2].Size)
			assert.Equal(t, "link", files[3].Name)
			assert.Equal(t, byte(tar.TypeSymlink), files[3].Type)
			assert.Equal(t, "dir/b.bin", files[4].Name)
			assert.Equal(t, uint64(1500), files[4].Size)
		})
	}
}

func TestScannerHeaderGroupsWholeRecords(t *testing.T) {
	t.Parallel()

	input := buildTar(t, []tarMember{
		{name: "small", data: []byte("x")},
	})

	items, _ := scanAll(t, input, 1)
	for _, item := range items {
		if item.Kind == KindHeader {
			assert.GreaterOrEqual(t, len(item.Data), recordSize)
			assert.Zero(t, len(item.Data)%recordSize, "header group must be whole records")
		}
	}
}

func TestScannerPayloadRespectsMax(t *testing.T) {
	t.Parallel()

	input := buildTar(t, []tarMember{
		{name: "big", data: bytes.Repeat([]byte("z"), 4096)},
	})

	items, _ := scanAll(t, input, 100)
	for _, item := range items {
		if item.Kind == KindPayload {
			assert.LessOrEqual(t, len(item.Data), 100)
		}
	}
}

func TestScannerPaxLongName(t *testing.T) {
	t.Parallel()

	// Long enough to force the stdlib writer into a PAX extended record.
	longName := strings.Repeat("deeply/nested/", 12) + "file.txt"
	require.Greater(t, len(longName), 100)

	input := buildTar(t, []tarMember{
		{name: longName, data: []byte("payload")},
	})

	items, files := scanAll(t, input, 1<<16)
	require.Len(t, files, 1)
	assert.Equal(t, longName, files[0].Name)
	assert.Equal(t, uint64(7), files[0].Size)

	// The PAX record and the member header arrive as one atomic group
	// spanning several records.
	var header Item
	for _, item := range items {
		if item.Kind == KindHeader {
			header = item
			break
		}
	}
	assert.Greater(t, len(header.Data), recordSize)
}

func TestScannerGNULongName(t *testing.T) {
	t.Parallel()

	longName := strings.Repeat("g", 150)
	var buf bytes.Buffer

	nameBytes := append([]byte(longName), 0)
	writeRecord(&buf, "././@LongLink", 'L', uint64(len(nameBytes)))
	buf.Write(nameBytes)
	buf.Write(make([]byte, recordSize-len(nameBytes)%recordSize))
	writeRecord(&buf, strings.Repeat("g", 100), '0', 3)
	buf.WriteString("abc")
	buf.Write(make([]byte, recordSize-3))
	buf.Write(make([]byte, 2*recordSize))

	_, files := scanAll(t, buf.Bytes(), 1<<16)
	require.Len(t, files, 1)
	assert.Equal(t, longName, files[0].Name)
	assert.Equal(t, uint64(3), files[0].Size)
}

// writeRecord emits a minimal ustar header record with a valid checksum.
func writeRecord(buf *bytes.Buffer, name string, typeflag byte, size uint64) {
	rec := make([]byte, recordSize)
	copy(rec[0:], name)
	copy(rec[100:], "0000644\x00")
	copy(rec[108:], "0000000\x00")
	copy(rec[116:], "0000000\x00")
	copy(rec[124:], fmt.Sprintf("%011o\x00", size))
	copy(rec[136:], "00000000000\x00")
	rec[156] = typeflag
	copy(rec[257:], "ustar\x0000")
	for i := 148; i < 156; i++ {
		rec[i] = ' '
	}
	var sum uint64
	for _, b := range rec {
		sum += uint64(b)
	}
	copy(rec[148:], fmt.Sprintf("%06o\x00 ", sum))
	buf.Write(rec)
}

func TestScannerGarbageInput(t *testing.T) {
	t.Parallel()

	garbage := bytes.Repeat([]byte{0x42}, recordSize)
	s := NewScanner(bytes.NewReader(garbage))
	_, err := s.Next(recordSize)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestScannerBadChecksum(t *testing.T) {
	t.Parallel()

	input := buildTar(t, []tarMember{{name: "f", data: []byte("data")}})
	input[130] ^= 0x01 // corrupt a size digit without fixing the checksum

	s := NewScanner(bytes.NewReader(input))
	_, err := s.Next(1 << 16)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestScannerTruncatedHeader(t *testing.T) {
	t.Parallel()

	input := buildTar(t, []tarMember{{name: "f", data: []byte("data")}})
	s := NewScanner(bytes.NewReader(input[:recordSize/2]))
	_, err := s.Next(1 << 16)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestScannerTruncatedPayload(t *testing.T) {
	t.Parallel()

	input := buildTar(t, []tarMember{{name: "f", data: bytes.Repeat([]byte("p"), 1024)}})
	s := NewScanner(bytes.NewReader(input[:recordSize+100]))

	_, err := s.Next(1 << 16) // header
	require.NoError(t, err)
	_, err = s.Next(1 << 16) // payload
	require.ErrorIs(t, err, ErrMalformed)
}

func TestScannerSingleZeroRecordEOF(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeRecord(&buf, "only", '0', 0)
	buf.Write(make([]byte, recordSize)) // one terminator record, not two

	items, files := scanAll(t, buf.Bytes(), 1<<16)
	require.Len(t, files, 1)

	var out bytes.Buffer
	for _, item := range items {
		out.Write(item.Data)
	}
	assert.Equal(t, buf.Bytes(), out.Bytes())
}

func TestScannerTrailingPadding(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeRecord(&buf, "f", '0', 0)
	buf.Write(make([]byte, 2*recordSize))
	// GNU tar pads the stream to its blocking factor.
	buf.Write(make([]byte, 17*recordSize))

	items, _ := scanAll(t, buf.Bytes(), 1<<16)

	var out bytes.Buffer
	for _, item := range items {
		out.Write(item.Data)
	}
	assert.Equal(t, buf.Bytes(), out.Bytes(), "trailing padding must be preserved")
}

func TestScannerEmptyInput(t *testing.T) {
	t.Parallel()

	s := NewScanner(bytes.NewReader(nil))
	_, err := s.Next(1 << 16)
	assert.Equal(t, io.EOF, err)
}

func TestPayloadSpan(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(0), (&File{Type: '5', Size: 100}).PayloadSpan())
	assert.Equal(t, uint64(0), (&File{Type: '2', Size: 7}).PayloadSpan())
	assert.Equal(t, uint64(512), (&File{Type: '0', Size: 1}).PayloadSpan())
	assert.Equal(t, uint64(512), (&File{Type: '0', Size: 512}).PayloadSpan())
	assert.Equal(t, uint64(1024), (&File{Type: '0', Size: 513}).PayloadSpan())
	assert.Equal(t, uint64(0), (&File{Type: '0', Size: 0}).PayloadSpan())
}
