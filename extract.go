package pzst

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"
	"io"
	"sort"

	"github.com/pzst/pzst/internal/codec"
	"github.com/pzst/pzst/internal/format"
	"github.com/pzst/pzst/internal/ioutil"
)

// span is a half-open range in the uncompressed block data.
type span struct {
	start uint64
	end   uint64
}

// Extract decompresses the named entries to dst as a contiguous stream
// of their archive records, reading and decoding only the blocks the
// selection touches. With no paths the entire uncompressed block data
// is written.
//
// Paths that do not exist in the index are reported joined under
// ErrEntryNotFound after all resolvable paths have been extracted.
func (a *Archive) Extract(ctx context.Context, dst io.Writer, paths ...string) (*ExtractStats, error) {
	stats := &ExtractStats{}

	spans, notFound := a.resolve(paths)
	if len(paths) == 0 {
		spans = []span{{start: 0, end: a.RawSize()}}
		stats.Entries = len(a.entries)
	} else {
		stats.Entries = len(spans)
	}

	if err := a.extractSpans(ctx, dst, spans, stats); err != nil {
		return stats, err
	}
	a.log().Debug("extract done",
		"entries", stats.Entries,
		"blocks_read", stats.BlocksRead,
		"bytes_read", stats.BytesRead,
		"bytes_written", stats.BytesWritten,
	)
	return stats, notFound
}

// resolve maps paths to their raw-stream spans, deduplicated and sorted
// in archive order. Unknown paths are collected into a joined error.
func (a *Archive) resolve(paths []string) ([]span, error) {
	spans := make([]span, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	var missing []error

	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		e, ok := a.byPath.Get(Entry{Path: p})
		if !ok {
			missing = append(missing, fmt.Errorf("%w: %s", ErrEntryNotFound, p))
			continue
		}
		spans = append(spans, span{
			start: a.rawStarts[e.StartBlock] + e.StartOffset,
			end:   a.rawStarts[e.EndBlock] + e.EndOffset,
		})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans, errors.Join(missing...)
}

// extractSpans walks the blocks intersecting the spans in a single
// forward pass, decoding each needed block exactly once.
func (a *Archive) extractSpans(ctx context.Context, dst io.Writer, spans []span, stats *ExtractStats) error {
	if len(spans) == 0 {
		return nil
	}

	si := 0
	for seq := a.locateBlock(spans[0].start); seq < len(a.blocks) && si < len(spans); seq++ {
		bs, be := a.rawStarts[seq], a.rawStarts[seq+1]
		if spans[si].start >= be {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := a.readBlock(seq, stats)
		if err != nil {
			return err
		}

		for si < len(spans) && spans[si].start < be {
			lo := max(spans[si].start, bs)
			hi := min(spans[si].end, be)
			n, err := dst.Write(data[lo-bs : hi-bs])
			stats.BytesWritten += uint64(n)
			if err != nil {
				return fmt.Errorf("write entry data: %w", err)
			}
			if spans[si].end > be {
				// Span continues into the next block.
				spans[si].start = be
				break
			}
			si++
		}
	}
	return nil
}

// locateBlock returns the index of the block containing raw offset off.
func (a *Archive) locateBlock(off uint64) int {
	return sort.Search(len(a.blocks), func(i int) bool {
		return a.rawStarts[i+1] > off
	})
}

// readBlock reads and decompresses block seq, verifying its checksum.
func (a *Archive) readBlock(seq int, stats *ExtractStats) ([]byte, error) {
	blk := a.blocks[seq]

	comp := make([]byte, blk.CompSize)
	if _, err := a.src.ReadAt(comp, int64(blk.CompOffset)); err != nil {
		return nil, fmt.Errorf("read block %d: %w", seq, err)
	}
	stats.BlocksRead++
	stats.BytesRead += blk.CompSize

	dec, release, err := a.pool.Get(bytes.NewReader(comp))
	if err != nil {
		return nil, fmt.Errorf("decode block %d: %w", seq, err)
	}
	defer release()

	data := make([]byte, blk.RawSize)
	if _, err := io.ReadFull(dec, data); err != nil {
		return nil, fmt.Errorf("decode block %d: %w", seq, err)
	}
	if sum := crc64.Checksum(data, crcTable); sum != blk.Checksum {
		return nil, fmt.Errorf("%w: block %d", ErrChecksum, seq)
	}
	return data, nil
}

// Decompress streams src through the codec identified by its leading
// frame magic and writes the uncompressed data to dst. It needs no
// index and works on truncated or foreign archives as long as the
// frames themselves are intact; skippable frames, including the index
// and trailer of a complete archive, are ignored by the decoder.
func Decompress(ctx context.Context, src io.Reader, dst io.Writer) (uint64, error) {
	br := newPeekReader(src)
	magic, err := br.peek(4)
	if err == io.EOF {
		// Empty input decompresses to empty output. A partial magic is
		// not empty input; it falls through as malformed below.
		return 0, nil
	}
	if err == io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("%w: truncated frame header", ErrMalformedArchive)
	}
	if err != nil {
		return 0, fmt.Errorf("read frame header: %w", err)
	}

	id, err := sniffCodec(magic)
	if err != nil {
		return 0, err
	}
	cdc, err := codec.ForID(id)
	if err != nil {
		return 0, err
	}

	dec, err := cdc.NewDecoder(br, 0)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	return ioutil.CopyWithContext(ctx, dst, dec, nil)
}

// sniffCodec identifies the codec from the first frame magic. A leading
// skippable frame gives no codec preference; either decoder ignores it,
// so zstd is used.
func sniffCodec(magic []byte) (format.CodecID, error) {
	switch {
	case bytes.Equal(magic, []byte{0x28, 0xB5, 0x2F, 0xFD}):
		return format.CodecZstd, nil
	case bytes.Equal(magic, []byte{0x04, 0x22, 0x4D, 0x18}):
		return format.CodecLZ4, nil
	case binary.LittleEndian.Uint32(magic)&^uint32(0xF) == format.SkippableMagic:
		return format.CodecZstd, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized frame magic %x", ErrMalformedArchive, magic)
	}
}

// peekReader lets Decompress sniff the frame magic without consuming it.
type peekReader struct {
	r   io.Reader
	buf []byte
}

func newPeekReader(r io.Reader) *peekReader { return &peekReader{r: r} }

// peek reads exactly n bytes ahead. io.EOF means the input was empty;
// io.ErrUnexpectedEOF means it ended inside the peeked region.
func (p *peekReader) peek(n int) ([]byte, error) {
	p.buf = make([]byte, n)
	if _, err := io.ReadFull(p.r, p.buf); err != nil {
		p.buf = nil
		return nil, err
	}
	return p.buf, nil
}

func (p *peekReader) Read(b []byte) (int, error) {
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		return n, nil
	}
	return p.r.Read(b)
}
