// Command zseek compresses, decompresses, and lists the contents of
// Zstandard seekable archives.
package main

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/SaveTheRbtz/fastcdc-go"
	"github.com/klauspost/compress/zstd"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	seekable "github.com/zeekstd-go/seekable"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var cmdErr error
	switch os.Args[1] {
	case "compress":
		cmdErr = runCompress(os.Args[2:], logger)
	case "decompress":
		cmdErr = runDecompress(os.Args[2:], logger)
	case "list":
		cmdErr = runList(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, "zseek:", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: zseek <compress|decompress|list> [flags]")
}

// byteValue parses the digit/unit grammar the CLI accepts for sizes:
// "10", "10B", "10K"/"10kib", "10M"/"10mib", "10G"/"10gib", "10T"/"10tib",
// with optional interior whitespace. Grounded on
// original_source/cli/src/args.rs's ByteValue::from_str.
func byteValue(s string) (uint64, error) {
	var digits, unit strings.Builder
	for _, c := range s {
		if c == ' ' || c == '\t' {
			continue
		}
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		} else {
			unit.WriteRune(c)
		}
	}
	v, err := strconv.ParseUint(digits.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q: %w", s, err)
	}
	switch unit.String() {
	case "", "B":
		return v, nil
	case "K", "kib":
		return v * 1024, nil
	case "M", "mib":
		return v * 1024 * 1024, nil
	case "G", "gib":
		return v * 1024 * 1024 * 1024, nil
	case "T", "tib":
		return v * 1024 * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", unit.String())
	}
}

// byteOffset additionally accepts the case-insensitive special values
// "start" (0) and "end" (math.MaxUint64), delegating to byteValue
// otherwise. Grounded on ByteOffset::from_str in the same file.
func byteOffset(s string) (uint64, error) {
	switch strings.ToLower(s) {
	case "start":
		return 0, nil
	case "end":
		return ^uint64(0), nil
	default:
		return byteValue(s)
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.OpenFile(path, os.O_TRUNC|os.O_WRONLY|os.O_CREATE, 0o644)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func runCompress(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	level := fs.Int("compression-level", 3, "compression level, 1-19")
	noChecksum := fs.Bool("no-checksum", false, "don't include frame checksums in the seek table")
	maxFrameSize := fs.String("max-frame-size", "2M", "frame size at which to start a new seekable frame")
	cdc := fs.Bool("cdc", false, "read input in content-defined chunks; frame boundaries still follow max-frame-size")
	verify := fs.Bool("verify", false, "read back the written archive and compare its sha256 against the input")
	output := fs.String("output-file", "", "output file (default: stdout)")
	progress := fs.Bool("progress", false, "show a progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}

	inputPath := "-"
	if fs.NArg() > 0 {
		inputPath = fs.Arg(0)
	}

	frameSize, err := byteValue(*maxFrameSize)
	if err != nil {
		return err
	}

	in, err := openInput(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	out, err := openOutput(*output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer out.Close()

	var reader io.Reader = in
	expected := sha256.New()
	if *verify {
		reader = io.TeeReader(in, expected)
	}

	w, err := seekable.NewWriter(out,
		seekable.WithEncoderZSTDOptions(zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(*level))),
		seekable.WithChecksum(!*noChecksum),
		seekable.WithFrameSizePolicy(seekable.Uncompressed(uint32(frameSize))),
		seekable.WithEncoderLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create seekable writer: %w", err)
	}

	var bar *progressbar.ProgressBar
	if *progress {
		bar = progressbar.DefaultBytes(-1, "compressing")
	}

	if *cdc {
		err = compressCDC(reader, w, bar)
	} else {
		err = compressFixed(reader, w, bar)
	}
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	if *verify {
		return verifyArchive(*output, expected.Sum(nil))
	}
	return nil
}

func compressFixed(r io.Reader, w *seekable.Writer, bar *progressbar.ProgressBar) error {
	buf := make([]byte, 256<<10)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write frame: %w", werr)
			}
			if bar != nil {
				bar.Add(n)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
}

func compressCDC(r io.Reader, w *seekable.Writer, bar *progressbar.ProgressBar) error {
	opts := fastcdc.Options{MinSize: 4 << 10, AverageSize: 16 << 10, MaxSize: 64 << 10}
	chunker, err := fastcdc.NewChunker(r, opts)
	if err != nil {
		return fmt.Errorf("failed to create chunker: %w", err)
	}
	for {
		chunk, err := chunker.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to chunk input: %w", err)
		}
		if _, err := w.Write(chunk.Data); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
		if bar != nil {
			bar.Add(len(chunk.Data))
		}
	}
}

func verifyArchive(path string, expected []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen archive for verification: %w", err)
	}
	defer f.Close()

	r, err := seekable.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open archive for verification: %w", err)
	}
	defer r.Close()

	actual := sha256.New()
	if _, err := io.Copy(actual, r); err != nil {
		return fmt.Errorf("failed to read archive for verification: %w", err)
	}

	if string(actual.Sum(nil)) != string(expected) {
		return fmt.Errorf("verification failed: checksum mismatch")
	}
	fmt.Fprintln(os.Stderr, "verification succeeded")
	return nil
}

func runDecompress(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("decompress", flag.ExitOnError)
	from := fs.String("from", "start", "decompressed offset to start at")
	fromFrame := fs.Int64("from-frame", -1, "frame number to start at (overrides --from)")
	to := fs.String("to", "end", "decompressed offset to stop at")
	toFrame := fs.Int64("to-frame", -1, "frame number to stop at, inclusive (overrides --to)")
	output := fs.String("output-file", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("decompress requires an input file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	r, err := seekable.NewReader(f, seekable.WithDecoderLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	startOff, err := resolveStart(*from, *fromFrame, r)
	if err != nil {
		return err
	}
	endOff, err := resolveEnd(*to, *toFrame, r)
	if err != nil {
		return err
	}
	if endOff < startOff {
		return fmt.Errorf("end offset %d before start offset %d", endOff, startOff)
	}

	out, err := openOutput(*output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer out.Close()

	if _, err := r.Seek(startOff, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	_, err = io.CopyN(out, r, endOff-startOff)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	return nil
}

func resolveStart(from string, fromFrame int64, r *seekable.Reader) (int64, error) {
	if fromFrame >= 0 {
		return frameStartOffset(r, fromFrame)
	}
	off, err := byteOffset(from)
	if err != nil {
		return 0, err
	}
	if off > uint64(r.Size()) {
		off = uint64(r.Size())
	}
	return int64(off), nil
}

func resolveEnd(to string, toFrame int64, r *seekable.Reader) (int64, error) {
	if toFrame >= 0 {
		start, err := frameStartOffset(r, toFrame)
		if err != nil {
			return 0, err
		}
		entry := r.FrameIndexAtOffset(uint64(start))
		if entry == nil {
			return r.Size(), nil
		}
		return start + int64(entry.DecompSize), nil
	}
	off, err := byteOffset(to)
	if err != nil {
		return 0, err
	}
	if off > uint64(r.Size()) {
		off = uint64(r.Size())
	}
	return int64(off), nil
}

func frameStartOffset(r *seekable.Reader, frame int64) (int64, error) {
	if frame < 0 || frame >= r.NumFrames() {
		return 0, fmt.Errorf("frame %d out of range (have %d frames)", frame, r.NumFrames())
	}
	var off int64
	for i := int64(0); i < frame; i++ {
		entry := r.FrameIndexAtOffset(uint64(off))
		if entry == nil {
			break
		}
		off += int64(entry.DecompSize)
	}
	return off, nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	detail := fs.Bool("detail", false, "print individual frame extents")
	humanBytes := fs.Bool("human-bytes", false, "print human readable byte values")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("list requires an input file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	r, err := seekable.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	fmtBytes := func(n uint64) string {
		if !*humanBytes {
			return strconv.FormatUint(n, 10)
		}
		return humanizeBytes(n)
	}

	fmt.Printf("frames: %d, decompressed size: %s\n", r.NumFrames(), fmtBytes(uint64(r.Size())))
	if !*detail {
		return nil
	}

	var off int64
	for i := int64(0); i < r.NumFrames(); i++ {
		entry := r.FrameIndexAtOffset(uint64(off))
		if entry == nil {
			break
		}
		checksum := "-"
		if entry.HasChecksum {
			checksum = fmt.Sprintf("%#08x", entry.Checksum)
		}
		fmt.Printf("frame %d: comp_offset=%s comp_size=%s decomp_offset=%s decomp_size=%s checksum=%s\n",
			entry.ID, fmtBytes(entry.CompOffset), fmtBytes(uint64(entry.CompSize)),
			fmtBytes(entry.DecompOffset), fmtBytes(uint64(entry.DecompSize)), checksum)
		off += int64(entry.DecompSize)
	}
	return nil
}

func humanizeBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
