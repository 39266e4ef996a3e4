package pzst

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"
)

var (
	benchSinkBytes []byte
	benchSinkStats *WriteStats
)

// benchInput builds a tar stream of count members of size bytes each.
func benchInput(b *testing.B, count, size int, random bool) []byte {
	b.Helper()

	rng := rand.New(rand.NewSource(42))
	members := make([]testMember, count)
	for i := range members {
		data := make([]byte, size)
		if random {
			rng.Read(data)
		} else {
			copy(data, compressibleData(int64(i), size))
		}
		members[i] = testMember{name: fmt.Sprintf("dir%d/file%04d", i%16, i), data: data}
	}
	return buildTestTar(b, members)
}

func BenchmarkCompress(b *testing.B) {
	cases := []struct {
		name    string
		workers int
		level   int
		random  bool
	}{
		{name: "workers=1/level=3/compressible", workers: 1, level: 3},
		{name: "workers=4/level=3/compressible", workers: 4, level: 3},
		{name: "workers=0/level=3/compressible", workers: 0, level: 3},
		{name: "workers=4/level=9/compressible", workers: 4, level: 9},
		{name: "workers=4/level=3/random", workers: 4, level: 3, random: true},
	}

	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			input := benchInput(b, 64, 64<<10, tc.random)
			opts := WriteOptions{
				TarFormat:     true,
				Level:         tc.level,
				Workers:       tc.workers,
				BlockFraction: 0.001,
			}
			b.SetBytes(int64(len(input)))
			b.ResetTimer()
			for range b.N {
				var out bytes.Buffer
				stats, err := NewWriter(opts).Compress(context.Background(), bytes.NewReader(input), &out)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkStats = stats
			}
		})
	}
}

func BenchmarkExtractSingleEntry(b *testing.B) {
	input := benchInput(b, 256, 16<<10, false)
	archive := compress(b, input, WriteOptions{TarFormat: true, BlockFraction: 0.001})
	a, err := Open(bytes.NewReader(archive))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for range b.N {
		var out bytes.Buffer
		if _, err := a.Extract(context.Background(), &out, "dir8/file0136"); err != nil {
			b.Fatal(err)
		}
		benchSinkBytes = out.Bytes()
	}
}

func BenchmarkDecompressFull(b *testing.B) {
	input := benchInput(b, 64, 64<<10, false)
	archive := compress(b, input, WriteOptions{TarFormat: true, BlockFraction: 0.001})

	b.SetBytes(int64(len(input)))
	b.ResetTimer()
	for range b.N {
		var out bytes.Buffer
		if _, err := Decompress(context.Background(), bytes.NewReader(archive), &out); err != nil {
			b.Fatal(err)
		}
		benchSinkBytes = out.Bytes()
	}
}
