//go:generate flatc --go --go-namespace fb -o internal schema/index.fbs

// Package pzst implements a parallel, block-structured compression
// container with a trailing random-access index.
//
// Input is split into blocks that are compressed concurrently and written
// in their original order, each as a complete zstd (or lz4) frame. A
// compressed index and a fixed-size trailer are appended inside codec
// skippable frames, so a plain stream decoder reproduces exactly the
// original input, while an index-aware reader can list archive members or
// extract individual members touching only the blocks that hold them.
//
// In tar-aware mode the block planner parses tar headers inline and never
// places a block boundary inside a header record group, so every member
// header is fully contained in one block.
//
// # Writing
//
//	w := pzst.NewWriter(pzst.WriteOptions{TarFormat: true})
//	stats, err := w.Compress(ctx, src, dst)
//
// # Listing and extraction
//
//	a, err := pzst.Open(src)
//	if err != nil {
//	    return err
//	}
//	for e := range a.Entries() {
//	    fmt.Println(e.Path)
//	}
//	_, err = a.Extract(ctx, os.Stdout, "path/in/archive")
//
// Block boundaries depend only on the input, the compression level, and
// the block fraction; runs with different worker counts produce identical
// archives.
package pzst
