package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"
	"io"
)

// Trailer layout, little-endian, 48 bytes:
//
//	[0:8]   magic "pzstidx1"
//	[8:10]  format version
//	[10]    codec id
//	[11:16] reserved, zero
//	[16:24] index payload offset
//	[24:32] index compressed size
//	[32:40] index uncompressed size
//	[40:48] CRC-64/ISO of bytes [0:40]
//
// The trailer is wrapped in a codec skippable frame (4-byte magic plus
// 4-byte length), so the final TrailerFrameSize bytes of a well-formed
// archive are always the trailer frame.
const (
	TrailerSize      = 48
	TrailerFrameSize = TrailerSize + skippableHeaderSize

	skippableHeaderSize = 8

	// SkippableMagic is the frame magic shared by the zstd and lz4 frame
	// formats for application-defined skippable frames. Conforming stream
	// decoders ignore these frames, which keeps a full-stream decode of an
	// archive byte-identical to the original input.
	SkippableMagic uint32 = 0x184D2A50
)

var trailerMagic = [8]byte{'p', 'z', 's', 't', 'i', 'd', 'x', '1'}

var crcTable = crc64.MakeTable(crc64.ISO)

// Errors distinguishing "not this format" from "this format, but damaged".
var (
	// ErrNoTrailer is returned when the stream does not end in a pzst
	// trailer frame at all.
	ErrNoTrailer = errors.New("pzst: no index trailer")

	// ErrTrailerCorrupt is returned when the trailer is recognizably pzst
	// but fails validation.
	ErrTrailerCorrupt = errors.New("pzst: corrupt index trailer")
)

// Trailer is the fixed-size footer locating the compressed index.
type Trailer struct {
	Version       uint16
	Codec         CodecID
	IndexOffset   uint64
	IndexCompSize uint64
	IndexRawSize  uint64
}

// EncodeTrailer serializes the trailer with its checksum.
func EncodeTrailer(t Trailer) [TrailerSize]byte {
	var buf [TrailerSize]byte
	copy(buf[0:8], trailerMagic[:])
	binary.LittleEndian.PutUint16(buf[8:10], t.Version)
	buf[10] = byte(t.Codec)
	binary.LittleEndian.PutUint64(buf[16:24], t.IndexOffset)
	binary.LittleEndian.PutUint64(buf[24:32], t.IndexCompSize)
	binary.LittleEndian.PutUint64(buf[32:40], t.IndexRawSize)
	binary.LittleEndian.PutUint64(buf[40:48], crc64.Checksum(buf[:40], crcTable))
	return buf
}

// DecodeTrailer parses and validates a trailer record.
//
// A wrong magic yields ErrNoTrailer; a checksum or version failure yields
// ErrTrailerCorrupt.
func DecodeTrailer(buf []byte) (Trailer, error) {
	if len(buf) != TrailerSize {
		return Trailer{}, fmt.Errorf("%w: trailer is %d bytes, want %d", ErrTrailerCorrupt, len(buf), TrailerSize)
	}
	if [8]byte(buf[0:8]) != trailerMagic {
		return Trailer{}, ErrNoTrailer
	}
	want := binary.LittleEndian.Uint64(buf[40:48])
	if got := crc64.Checksum(buf[:40], crcTable); got != want {
		return Trailer{}, fmt.Errorf("%w: checksum mismatch", ErrTrailerCorrupt)
	}
	t := Trailer{
		Version:       binary.LittleEndian.Uint16(buf[8:10]),
		Codec:         CodecID(buf[10]),
		IndexOffset:   binary.LittleEndian.Uint64(buf[16:24]),
		IndexCompSize: binary.LittleEndian.Uint64(buf[24:32]),
		IndexRawSize:  binary.LittleEndian.Uint64(buf[32:40]),
	}
	if t.Version != Version {
		return Trailer{}, fmt.Errorf("%w: unsupported version %d", ErrTrailerCorrupt, t.Version)
	}
	return t, nil
}

// WriteSkippableFrame writes payload wrapped in a skippable frame.
// It returns the number of bytes written.
func WriteSkippableFrame(w io.Writer, payload []byte) (int, error) {
	var hdr [skippableHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], SkippableMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	n, err := w.Write(hdr[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}

// ParseSkippableHeader validates a skippable frame header and returns the
// payload length.
func ParseSkippableHeader(hdr []byte) (uint32, error) {
	if len(hdr) < skippableHeaderSize {
		return 0, fmt.Errorf("%w: short skippable frame header", ErrNoTrailer)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic&^uint32(0xF) != SkippableMagic {
		return 0, ErrNoTrailer
	}
	return binary.LittleEndian.Uint32(hdr[4:8]), nil
}
