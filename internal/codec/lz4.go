package codec

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/pzst/pzst/internal/format"
)

type lz4Codec struct{}

func (lz4Codec) ID() format.CodecID { return format.CodecLZ4 }

// WindowSize is the largest lz4 frame block size. lz4 has no per-level
// window; every level plans against the 4MB frame block.
func (lz4Codec) WindowSize(level int) int {
	return 4 << 20
}

func (lz4Codec) NewEncoder(level int) (Encoder, error) {
	w := lz4.NewWriter(io.Discard)
	opts := []lz4.Option{
		lz4.CompressionLevelOption(lz4Level(level)),
		lz4.BlockSizeOption(lz4.Block4Mb),
		lz4.ConcurrencyOption(1),
	}
	if err := w.Apply(opts...); err != nil {
		return nil, fmt.Errorf("create lz4 encoder: %w", err)
	}
	return &lz4Encoder{w: w, opts: opts}, nil
}

func (lz4Codec) NewDecoder(r io.Reader, _ uint64) (Decoder, error) {
	if r == nil {
		r = io.MultiReader()
	}
	return &lz4Decoder{r: lz4.NewReader(r)}, nil
}

// lz4Level maps the shared 1-9 level scale onto lz4 compression levels.
// Levels 1 and 2 use the fast path; higher levels use lz4hc.
func lz4Level(level int) lz4.CompressionLevel {
	switch level {
	case 1, 2:
		return lz4.Fast
	case 3:
		return lz4.Level1
	case 4:
		return lz4.Level2
	case 5:
		return lz4.Level4
	case 6:
		return lz4.Level5
	case 7:
		return lz4.Level6
	case 8:
		return lz4.Level8
	default:
		return lz4.Level9
	}
}

type lz4Encoder struct {
	w    *lz4.Writer
	opts []lz4.Option

	// err holds an option re-application failure from Reset until the
	// next Write or Close can report it.
	err error
}

func (e *lz4Encoder) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	return e.w.Write(p)
}

func (e *lz4Encoder) Reset(w io.Writer) {
	e.w.Reset(w)
	// Reset returns the writer to its NewWriter state; options must be
	// re-applied before the next frame.
	e.err = e.w.Apply(e.opts...)
}

func (e *lz4Encoder) Close() error {
	if e.err != nil {
		return e.err
	}
	return e.w.Close()
}

type lz4Decoder struct {
	r *lz4.Reader
}

func (d *lz4Decoder) Read(p []byte) (int, error) { return d.r.Read(p) }

func (d *lz4Decoder) Reset(r io.Reader) error {
	d.r.Reset(r)
	return nil
}

func (d *lz4Decoder) Close() {}
