package pzst

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc64"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pzst/pzst/internal/format"
	"github.com/pzst/pzst/internal/ioutil"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// compBlock is a compressed block awaiting its turn in the output order.
type compBlock struct {
	seq      int
	frame    []byte
	rawSize  uint64
	checksum uint64
}

// Writer creates pzst archives.
type Writer struct {
	opts WriteOptions
}

// NewWriter creates a Writer with the given options.
func NewWriter(opts WriteOptions) *Writer {
	return &Writer{opts: opts}
}

// Compress reads src to EOF and writes a complete archive to dst.
//
// The input is split into blocks which are compressed concurrently by a
// bounded worker pool and written in their original order, followed by
// the compressed index and the trailer. Total in-flight blocks are
// bounded by QueueDepth: when the bound is reached the planner blocks
// until the writer drains a block.
//
// On any failure the pipeline stops and no trailer is written; a partial
// output carries no discoverable index and must be treated as unusable.
func (w *Writer) Compress(ctx context.Context, src io.Reader, dst io.Writer) (*WriteStats, error) {
	cfg, err := w.opts.validate()
	if err != nil {
		return nil, err
	}

	cw := &ioutil.CountingWriter{W: dst}
	cfg.log().Debug("pipeline start",
		"codec", cfg.codec.ID().String(),
		"level", cfg.level,
		"target_block", cfg.target,
		"workers", cfg.workers,
		"queue_depth", cfg.queueDepth,
	)

	blocks, plan, err := w.runPipeline(ctx, cfg, src, cw)
	if err != nil {
		return nil, err
	}

	entries := plan.entries()
	if err := w.writeIndex(cfg, cw, blocks, entries); err != nil {
		return nil, err
	}

	stats := &WriteStats{
		Blocks:          len(blocks),
		Entries:         len(entries),
		RawBytes:        plan.pos,
		CompressedBytes: cw.N,
	}
	cfg.log().Debug("pipeline done",
		"blocks", stats.Blocks,
		"entries", stats.Entries,
		"raw_bytes", stats.RawBytes,
		"compressed_bytes", stats.CompressedBytes,
	)
	return stats, nil
}

// runPipeline runs the planner, the worker pool, and the in-order drain
// until the input is exhausted or the first error cancels the group.
func (w *Writer) runPipeline(ctx context.Context, cfg pipelineConfig, src io.Reader, cw *ioutil.CountingWriter) ([]format.Block, *planner, error) {
	eg, ctx := errgroup.WithContext(ctx)

	rawCh := make(chan rawBlock, cfg.queueDepth)
	compCh := make(chan compBlock, cfg.workers)

	// inflight bounds the blocks held anywhere between the planner and
	// the drain; with a full queue the planner blocks on Acquire.
	inflight := semaphore.NewWeighted(int64(cfg.queueDepth))

	plan := newPlanner(cfg, func(blk rawBlock) error {
		if err := inflight.Acquire(ctx, 1); err != nil {
			return err
		}
		select {
		case rawCh <- blk:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	eg.Go(func() error {
		defer close(rawCh)
		return plan.run(src)
	})

	var workerWg sync.WaitGroup
	workerWg.Add(cfg.workers)
	for range cfg.workers {
		eg.Go(func() error {
			defer workerWg.Done()
			return w.compressWorker(ctx, cfg, rawCh, compCh)
		})
	}
	go func() {
		workerWg.Wait()
		close(compCh)
	}()

	var blocks []format.Block
	eg.Go(func() error {
		var err error
		blocks, err = w.drain(ctx, cfg, compCh, cw, inflight)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return blocks, plan, nil
}

// compressWorker compresses raw blocks into complete codec frames. Blocks
// are pulled in submission order but may complete in any order relative to
// other workers.
func (w *Writer) compressWorker(ctx context.Context, cfg pipelineConfig, rawCh <-chan rawBlock, compCh chan<- compBlock) error {
	enc, err := cfg.codec.NewEncoder(cfg.level)
	if err != nil {
		return err
	}
	for blk := range rawCh {
		if err := ctx.Err(); err != nil {
			return err
		}

		var buf bytes.Buffer
		buf.Grow(len(blk.data) / 2)
		enc.Reset(&buf)
		if _, err := enc.Write(blk.data); err != nil {
			return fmt.Errorf("compress block %d: %w", blk.seq, err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("compress block %d: %w", blk.seq, err)
		}

		res := compBlock{
			seq:      blk.seq,
			frame:    buf.Bytes(),
			rawSize:  uint64(len(blk.data)),
			checksum: crc64.Checksum(blk.data, crcTable),
		}
		select {
		case compCh <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// drain writes completed blocks strictly in sequence order, holding
// out-of-order completions until the next expected sequence number
// arrives, and records a block index record per emitted block.
func (w *Writer) drain(ctx context.Context, cfg pipelineConfig, compCh <-chan compBlock, cw *ioutil.CountingWriter, inflight *semaphore.Weighted) ([]format.Block, error) {
	var blocks []format.Block
	next := 0
	pending := make(map[int]compBlock, cfg.queueDepth)

	for {
		select {
		case res, ok := <-compCh:
			if !ok {
				if len(pending) != 0 {
					return nil, fmt.Errorf("pzst: pipeline ended with %d unwritten blocks", len(pending))
				}
				return blocks, nil
			}
			pending[res.seq] = res
			for {
				res, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				blk := format.Block{
					CompOffset: cw.N,
					CompSize:   uint64(len(res.frame)),
					RawSize:    res.rawSize,
					Checksum:   res.checksum,
				}
				if _, err := cw.Write(res.frame); err != nil {
					return nil, fmt.Errorf("write block %d: %w", next, err)
				}
				blocks = append(blocks, blk)
				inflight.Release(1)
				next++
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// writeIndex compresses the index payload, wraps it in a skippable frame,
// and appends the trailer frame.
func (w *Writer) writeIndex(cfg pipelineConfig, cw *ioutil.CountingWriter, blocks []format.Block, entries []format.Entry) error {
	raw := format.BuildIndex(cfg.codec.ID(), blocks, entries)

	var comp bytes.Buffer
	enc, err := cfg.codec.NewEncoder(cfg.level)
	if err != nil {
		return err
	}
	enc.Reset(&comp)
	if _, err := enc.Write(raw); err != nil {
		return fmt.Errorf("compress index: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("compress index: %w", err)
	}

	// The index offset points at the compressed payload inside the
	// skippable frame, past its 8-byte header.
	indexOffset := cw.N + 8
	if _, err := format.WriteSkippableFrame(cw, comp.Bytes()); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	trailer := format.EncodeTrailer(format.Trailer{
		Version:       format.Version,
		Codec:         cfg.codec.ID(),
		IndexOffset:   indexOffset,
		IndexCompSize: uint64(comp.Len()),
		IndexRawSize:  uint64(len(raw)),
	})
	if _, err := format.WriteSkippableFrame(cw, trailer[:]); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	return nil
}
