package pzst

import (
	"errors"
	"io"
	"sort"

	"github.com/pzst/pzst/internal/format"
	"github.com/pzst/pzst/internal/tarscan"
)

// rawBlock is a planned, uncompressed block awaiting a compression worker.
type rawBlock struct {
	seq  int
	data []byte
}

// entrySpan records a member's position in the logical uncompressed stream
// while blocks are still being planned. Block coordinates are resolved
// once all block sizes are known.
type entrySpan struct {
	path  string
	typ   byte
	size  uint64
	start uint64
	end   uint64
}

// planner converts the input stream into a sequence of raw blocks. It is
// single threaded; block boundaries depend only on the input, the target
// block size, and tar-aware header alignment, never on worker scheduling.
type planner struct {
	cfg  pipelineConfig
	emit func(rawBlock) error

	seq      int
	buf      []byte
	pos      uint64
	rawSizes []uint64
	spans    []entrySpan
}

func newPlanner(cfg pipelineConfig, emit func(rawBlock) error) *planner {
	return &planner{cfg: cfg, emit: emit}
}

func (p *planner) run(src io.Reader) error {
	if p.cfg.tar {
		return p.planTar(src)
	}
	return p.planRaw(src)
}

// planRaw chunks the input into target-sized blocks with no alignment
// constraints.
func (p *planner) planRaw(src io.Reader) error {
	for {
		if p.buf == nil {
			p.buf = make([]byte, 0, p.cfg.target)
		}
		n, err := src.Read(p.buf[len(p.buf):p.cfg.target])
		p.buf = p.buf[:len(p.buf)+n]
		if len(p.buf) >= p.cfg.target {
			if err := p.flush(); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return p.flush()
		}
		if err != nil {
			return err
		}
	}
}

// planTar tokenizes the input through the tar scanner. Header record
// groups are appended atomically: when the target size is reached inside
// a group, the boundary is deferred until the group is complete, so the
// block may exceed the target but never splits a header.
func (p *planner) planTar(src io.Reader) error {
	scan := tarscan.NewScanner(src)
	for {
		item, err := scan.Next(p.cfg.target - len(p.buf))
		if errors.Is(err, io.EOF) {
			return p.flush()
		}
		if err != nil {
			return err
		}
		if item.Kind == tarscan.KindHeader && item.File != nil {
			start := p.pos + uint64(len(p.buf))
			p.spans = append(p.spans, entrySpan{
				path:  item.File.Name,
				typ:   item.File.Type,
				size:  item.File.Size,
				start: start,
				end:   start + uint64(len(item.Data)) + item.File.PayloadSpan(),
			})
		}
		if err := p.append(item.Data); err != nil {
			return err
		}
	}
}

func (p *planner) append(data []byte) error {
	if p.buf == nil {
		p.buf = make([]byte, 0, p.cfg.target)
	}
	p.buf = append(p.buf, data...)
	if len(p.buf) >= p.cfg.target {
		return p.flush()
	}
	return nil
}

func (p *planner) flush() error {
	if len(p.buf) == 0 {
		return nil
	}
	blk := rawBlock{seq: p.seq, data: p.buf}
	p.rawSizes = append(p.rawSizes, uint64(len(p.buf)))
	p.pos += uint64(len(p.buf))
	p.seq++
	p.buf = nil
	return p.emit(blk)
}

// entries resolves the recorded spans to block coordinates using the
// final block sizes. Called after the pipeline has drained.
func (p *planner) entries() []format.Entry {
	if len(p.spans) == 0 {
		return nil
	}

	// starts[i] is the logical offset of block i; starts[len] is the total.
	starts := make([]uint64, len(p.rawSizes)+1)
	for i, size := range p.rawSizes {
		starts[i+1] = starts[i] + size
	}

	locate := func(off uint64) int {
		// The block whose range contains off.
		return sort.Search(len(p.rawSizes), func(i int) bool {
			return starts[i+1] > off
		})
	}

	entries := make([]format.Entry, len(p.spans))
	for i, span := range p.spans {
		startBlock := locate(span.start)
		endBlock := locate(span.end - 1)
		entries[i] = format.Entry{
			Path:        span.path,
			Type:        span.typ,
			Size:        span.size,
			StartBlock:  uint32(startBlock),
			StartOffset: span.start - starts[startBlock],
			EndBlock:    uint32(endBlock),
			EndOffset:   span.end - starts[endBlock],
		}
	}
	return entries
}
