// Command pzst compresses and extracts block-indexed archives.
//
// By default it compresses its input; -d decompresses, -l lists the
// members of a tar archive, and -x extracts named members. Tar input is
// detected and indexed automatically unless -t disables scanning.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pzst/pzst"
)

type config struct {
	decompress bool
	list       bool
	extract    bool
	noTar      bool
	keep       bool
	toStdout   bool
	verbose    bool

	input    string
	output   string
	level    int
	lz4      bool
	workers  int
	queue    int
	fraction float64

	paths []string
}

func main() {
	cfg := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.DiscardHandler)
	if cfg.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var err error
	switch {
	case cfg.list:
		err = runList(cfg)
	case cfg.extract:
		err = runExtract(ctx, cfg)
	case cfg.decompress:
		err = runDecompress(ctx, cfg)
	default:
		err = runCompress(ctx, cfg, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pzst: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	flag.BoolVar(&cfg.decompress, "d", false, "decompress instead of compress")
	flag.BoolVar(&cfg.list, "l", false, "list archive members")
	flag.BoolVar(&cfg.extract, "x", false, "extract named members (paths follow the archive argument)")
	flag.BoolVar(&cfg.noTar, "t", false, "do not scan input as tar; compress as a raw stream")
	flag.BoolVar(&cfg.keep, "k", false, "keep the input file")
	flag.BoolVar(&cfg.toStdout, "c", false, "write to standard output")
	flag.BoolVar(&cfg.verbose, "v", false, "log pipeline activity to standard error")
	flag.StringVar(&cfg.input, "i", "", "input file (default: first argument or standard input)")
	flag.StringVar(&cfg.output, "o", "", "output file (default: derived from input name)")
	flag.IntVar(&cfg.level, "level", pzst.DefaultLevel, "compression level (1-9)")
	flag.BoolVar(&cfg.lz4, "lz4", false, "compress with lz4 instead of zstd")
	flag.IntVar(&cfg.workers, "p", 0, "compression workers (default: all CPUs)")
	flag.IntVar(&cfg.queue, "q", pzst.DefaultQueueDepth, "in-flight block limit")
	flag.Float64Var(&cfg.fraction, "f", pzst.DefaultBlockFraction, "block size as a fraction of the codec window")

	// Digit shorthands in the style of xz: -1 fastest through -9 strongest.
	var digits [10]bool
	for i := 1; i <= 9; i++ {
		flag.BoolVar(&digits[i], strconv.Itoa(i), false, "")
	}
	flag.Parse()
	for i := 1; i <= 9; i++ {
		if digits[i] {
			cfg.level = i
		}
	}

	args := flag.Args()
	if cfg.list || cfg.extract {
		if cfg.input == "" && len(args) > 0 {
			cfg.input, args = args[0], args[1:]
		}
		cfg.paths = args
		return cfg
	}
	if cfg.input == "" && len(args) > 0 {
		cfg.input = args[0]
		args = args[1:]
	}
	if cfg.output == "" && len(args) > 0 {
		cfg.output = args[0]
	}
	return cfg
}

func runCompress(ctx context.Context, cfg config, logger *slog.Logger) error {
	in, closeIn, err := openInput(cfg.input)
	if err != nil {
		return err
	}
	defer closeIn()

	outName := cfg.output
	if outName == "" && !cfg.toStdout && cfg.input != "" {
		outName = compressedName(cfg.input)
	}
	out, closeOut, err := openOutput(outName)
	if err != nil {
		return err
	}

	opts := pzst.WriteOptions{
		Level:         cfg.level,
		TarFormat:     !cfg.noTar,
		BlockFraction: cfg.fraction,
		Workers:       cfg.workers,
		QueueDepth:    cfg.queue,
		Logger:        logger,
	}
	if cfg.lz4 {
		opts.Compression = pzst.CompressionLZ4
	}

	if _, err := pzst.NewWriter(opts).Compress(ctx, in, out); err != nil {
		closeOut()
		if outName != "" {
			os.Remove(outName)
		}
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	return removeInput(cfg, outName)
}

func runDecompress(ctx context.Context, cfg config) error {
	in, closeIn, err := openInput(cfg.input)
	if err != nil {
		return err
	}
	defer closeIn()

	outName := cfg.output
	if outName == "" && !cfg.toStdout && cfg.input != "" {
		outName, err = decompressedName(cfg.input)
		if err != nil {
			return err
		}
	}
	out, closeOut, err := openOutput(outName)
	if err != nil {
		return err
	}

	if _, err := pzst.Decompress(ctx, in, out); err != nil {
		closeOut()
		if outName != "" {
			os.Remove(outName)
		}
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	return removeInput(cfg, outName)
}

func runList(cfg config) error {
	a, closeIn, err := openArchive(cfg.input)
	if err != nil {
		return err
	}
	defer closeIn()

	for e := range a.Entries() {
		fmt.Printf("%c %12d %s\n", e.Type, e.Size, e.Path)
	}
	return nil
}

func runExtract(ctx context.Context, cfg config) error {
	a, closeIn, err := openArchive(cfg.input)
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := openOutput(cfg.output)
	if err != nil {
		return err
	}
	if _, err := a.Extract(ctx, out, cfg.paths...); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func openArchive(name string) (*pzst.Archive, func() error, error) {
	if name == "" {
		return nil, nil, errors.New("listing and extraction require a file argument")
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	a, err := pzst.Open(fileSource{f, info.Size()})
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return a, f.Close, nil
}

// fileSource adapts an os.File to the stable size an Archive expects.
type fileSource struct {
	*os.File
	size int64
}

func (fs fileSource) Size() int64 { return fs.size }

func openInput(name string) (io.Reader, func() error, error) {
	if name == "" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func openOutput(name string) (io.Writer, func() error, error) {
	if name == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func compressedName(in string) string {
	if strings.HasSuffix(in, ".tar") {
		return strings.TrimSuffix(in, ".tar") + ".tpzst"
	}
	return in + ".pzst"
}

func decompressedName(in string) (string, error) {
	switch {
	case strings.HasSuffix(in, ".tpzst"):
		return strings.TrimSuffix(in, ".tpzst") + ".tar", nil
	case strings.HasSuffix(in, ".pzst"):
		return strings.TrimSuffix(in, ".pzst"), nil
	default:
		return "", fmt.Errorf("cannot derive output name from %q; use -o or -c", in)
	}
}

// removeInput deletes the input after a successful file-to-file
// conversion, matching the behavior of xz. Stdin or stdout pipelines
// and -k leave the input in place.
func removeInput(cfg config, outName string) error {
	if cfg.keep || cfg.input == "" || outName == "" {
		return nil
	}
	return os.Remove(cfg.input)
}
