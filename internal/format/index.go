package format

import (
	"errors"
	"fmt"
	"iter"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/pzst/pzst/internal/fb"
)

// BuildIndex serializes block and entry records to the FlatBuffers index
// payload. Records are written in the order given, which is sequence order
// for blocks and original archive order for entries.
func BuildIndex(codec CodecID, blocks []Block, entries []Entry) []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Build tables in reverse order (FlatBuffers requirement).
	blockOffsets := make([]flatbuffers.UOffsetT, len(blocks))
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		fb.BlockStart(builder)
		fb.BlockAddCompOffset(builder, b.CompOffset)
		fb.BlockAddCompSize(builder, b.CompSize)
		fb.BlockAddRawSize(builder, b.RawSize)
		fb.BlockAddChecksum(builder, b.Checksum)
		blockOffsets[i] = fb.BlockEnd(builder)
	}

	entryOffsets := make([]flatbuffers.UOffsetT, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		pathOffset := builder.CreateString(e.Path)
		fb.EntryStart(builder)
		fb.EntryAddPath(builder, pathOffset)
		fb.EntryAddType(builder, e.Type)
		fb.EntryAddSize(builder, e.Size)
		fb.EntryAddStartBlock(builder, e.StartBlock)
		fb.EntryAddStartOffset(builder, e.StartOffset)
		fb.EntryAddEndBlock(builder, e.EndBlock)
		fb.EntryAddEndOffset(builder, e.EndOffset)
		entryOffsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartBlocksVector(builder, len(blocks))
	for i := len(blockOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(blockOffsets[i])
	}
	blocksVec := builder.EndVector(len(blocks))

	fb.IndexStartEntriesVector(builder, len(entries))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesVec := builder.EndVector(len(entries))

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, Version)
	fb.IndexAddCodec(builder, byte(codec))
	fb.IndexAddBlocks(builder, blocksVec)
	fb.IndexAddEntries(builder, entriesVec)
	root := fb.IndexEnd(builder)

	builder.Finish(root)
	return builder.FinishedBytes()
}

// Index provides access to a parsed index payload.
//
// Accessors materialize records from the FlatBuffers buffer; the buffer is
// retained for the lifetime of the Index and must not be modified.
type Index struct {
	data []byte
	root *fb.Index
}

// LoadIndex parses a FlatBuffers-encoded index payload.
//
// The provided data is retained by the index; callers must not modify it
// after calling LoadIndex.
func LoadIndex(data []byte) (idx *Index, err error) {
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%w: failed to parse index: %v", ErrTrailerCorrupt, r)
		}
	}()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty index payload", ErrTrailerCorrupt)
	}

	root := fb.GetRootAsIndex(data, 0)
	if root == nil {
		return nil, errors.New("pzst: failed to parse index")
	}
	idx = &Index{data: data, root: root}
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("%w: unsupported index version %d", ErrTrailerCorrupt, v)
	}
	return idx, nil
}

// Codec returns the codec id recorded in the index.
func (idx *Index) Codec() CodecID {
	return CodecID(idx.root.Codec())
}

// BlocksLen returns the number of block records.
func (idx *Index) BlocksLen() int {
	return idx.root.BlocksLength()
}

// EntriesLen returns the number of entry records.
func (idx *Index) EntriesLen() int {
	return idx.root.EntriesLength()
}

// Blocks returns an iterator over block records in sequence order.
func (idx *Index) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		var fbBlock fb.Block
		for i := range idx.root.BlocksLength() {
			if !idx.root.Blocks(&fbBlock, i) {
				return
			}
			b := Block{
				CompOffset: fbBlock.CompOffset(),
				CompSize:   fbBlock.CompSize(),
				RawSize:    fbBlock.RawSize(),
				Checksum:   fbBlock.Checksum(),
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Entries returns an iterator over entry records in original archive order.
func (idx *Index) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		var fbEntry fb.Entry
		for i := range idx.root.EntriesLength() {
			if !idx.root.Entries(&fbEntry, i) {
				return
			}
			e := Entry{
				Path:        string(fbEntry.Path()),
				Type:        fbEntry.Type(),
				Size:        fbEntry.Size(),
				StartBlock:  fbEntry.StartBlock(),
				StartOffset: fbEntry.StartOffset(),
				EndBlock:    fbEntry.EndBlock(),
				EndOffset:   fbEntry.EndOffset(),
			}
			if !yield(e) {
				return
			}
		}
	}
}
