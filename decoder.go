package seekable

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/zeekstd-go/seekable/env"
)

type cachedFrame struct {
	m sync.Mutex

	offset uint64
	data   []byte
	valid  bool
}

func (f *cachedFrame) replace(offset uint64, data []byte) {
	f.m.Lock()
	defer f.m.Unlock()
	f.offset = offset
	f.data = data
	f.valid = true
}

func (f *cachedFrame) get() (uint64, []byte, bool) {
	f.m.Lock()
	defer f.m.Unlock()
	return f.offset, f.data, f.valid
}

func (f *cachedFrame) invalidate() {
	f.m.Lock()
	defer f.m.Unlock()
	f.valid = false
	f.data = nil
}

// Reader is the buffered, random-access decoder (spec's §4.G): it
// implements io.Reader, io.Seeker, io.ReaderAt and io.Closer over a
// seekable compressed stream, resolving offsets through a SeekTable and
// fetching/decoding individual frames through an env.Source. Grounded on
// the teacher's reader.go (readerImpl).
type Reader struct {
	dec   *zstd.Decoder
	table *SeekTable
	src   env.Source

	o decoderOptions

	offset    int64
	endOffset int64

	closed atomic.Bool

	cache cachedFrame
}

var (
	_ io.Seeker   = (*Reader)(nil)
	_ io.Reader   = (*Reader)(nil)
	_ io.ReaderAt = (*Reader)(nil)
	_ io.Closer   = (*Reader)(nil)
)

// NewReader returns a Reader over rs. rs should implement io.ReaderAt in
// addition to io.ReadSeeker for safe concurrent ReadAt calls.
func NewReader(rs io.ReadSeeker, opts ...DecoderOption) (*Reader, error) {
	var o decoderOptions
	o.setDefault()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	src := o.source
	if src == nil {
		src = env.NewReadSeekerSource(rs)
	}

	dec, err := zstd.NewReader(nil, o.zstdDOpts...)
	if err != nil {
		return nil, wrapErr(KindZstdCreate, err, "failed to create zstd decoder")
	}

	table, err := ParseSeekTable(src, o.format)
	if err != nil {
		dec.Close()
		return nil, err
	}

	r := &Reader{
		dec:   dec,
		table: table,
		src:   src,
		o:     o,
	}
	r.endOffset = int64(table.Size())
	return r, nil
}

// NewDecoder returns a byte-oriented Decoder built directly from a
// standalone seek-table blob (the trailing skippable frame of a stream, as
// produced by MarshalSeekTable), with no
// ability to fetch frame contents — only offset/frame bookkeeping.
func NewDecoder(seekTable []byte, opts ...DecoderOption) (*Reader, error) {
	opts = append([]DecoderOption{WithDecoderSource(env.NewBytesSource(seekTable))}, opts...)
	return NewReader(nil, opts...)
}

// NumFrames returns the number of frames in the stream.
func (r *Reader) NumFrames() int64 {
	return r.table.NumFrames()
}

// Size returns the total decompressed size of the stream.
func (r *Reader) Size() int64 {
	return r.endOffset
}

// FrameIndexAtOffset returns the frame covering decompressed offset off.
// An offset at or beyond the end of the stream yields the last frame; nil
// is returned only when the stream has no frames.
func (r *Reader) FrameIndexAtOffset(off uint64) *env.FrameOffsetEntry {
	return r.table.FrameIndexAtD(off)
}

func (r *Reader) ReadAt(p []byte, off int64) (n int, err error) {
	for m := 0; n < len(p) && err == nil; n += m {
		_, m, err = r.read(p[n:], off+int64(n))
	}
	return
}

func (r *Reader) Read(p []byte) (n int, err error) {
	offset, n, err := r.read(p, r.offset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.offset = r.endOffset
		}
		return
	}
	r.offset = offset
	return
}

func (r *Reader) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.cache.replace(math.MaxUint64, nil)
		r.cache.invalidate()
		r.dec.Close()
	}
	return nil
}

func (r *Reader) read(dst []byte, off int64) (int64, int, error) {
	if r.closed.Load() {
		return 0, 0, fmt.Errorf("reader is closed")
	}
	if off >= r.endOffset {
		return 0, 0, io.EOF
	}
	if off < 0 {
		return 0, 0, fmt.Errorf("offset before start of stream: %d", off)
	}

	index := r.table.FrameIndexAtD(uint64(off))
	if index == nil {
		return 0, 0, ErrOffsetOutOfRange
	}

	decompressed, err := r.decodedFrame(index)
	if err != nil {
		return 0, 0, err
	}

	offsetWithinFrame := uint64(off) - index.DecompOffset
	size := uint64(len(decompressed)) - offsetWithinFrame
	if size > uint64(len(dst)) {
		size = uint64(len(dst))
	}

	r.o.logger.Debug("decompressed",
		zap.Uint64("offsetWithinFrame", offsetWithinFrame),
		zap.Uint64("size", size),
		zap.Object("index", index))
	copy(dst, decompressed[offsetWithinFrame:offsetWithinFrame+size])

	return off + int64(size), int(size), nil
}

func (r *Reader) decodedFrame(index *env.FrameOffsetEntry) ([]byte, error) {
	cachedOffset, cachedData, valid := r.cache.get()
	if valid && cachedOffset == index.DecompOffset {
		return cachedData, nil
	}

	if index.CompSize > maxDecoderFrameSize {
		return nil, newErr(KindFrameSizeTooLarge, "frame %d compressed size %d exceeds %d", index.ID, index.CompSize, maxDecoderFrameSize)
	}

	src, err := r.src.GetFrameByIndex(*index)
	if err != nil {
		return nil, wrapErr(KindIO, err, "failed to read frame %d", index.ID)
	}
	if len(src) != int(index.CompSize) {
		return nil, newErr(KindCorrupt, "frame %d: read %d bytes, expected %d", index.ID, len(src), index.CompSize)
	}

	decompressed, err := decompressAll(r.dec, src)
	if err != nil {
		return nil, err
	}
	if len(decompressed) != int(index.DecompSize) {
		return nil, newErr(KindCorrupt, "frame %d: decompressed %d bytes, expected %d", index.ID, len(decompressed), index.DecompSize)
	}

	if r.o.verifyChecksum {
		if !index.HasChecksum {
			return nil, ErrMissingChecksum
		}
		if got := uint32(xxhash.Sum64(decompressed)); got != index.Checksum {
			return nil, wrapErr(KindChecksumMismatch, nil, "frame %d: expected %#x, got %#x", index.ID, index.Checksum, got)
		}
	}

	r.cache.replace(index.DecompOffset, decompressed)
	return decompressed, nil
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	newOffset := r.offset
	switch whence {
	case io.SeekCurrent:
		newOffset += offset
	case io.SeekStart:
		newOffset = offset
	case io.SeekEnd:
		newOffset = r.endOffset + offset
	default:
		return 0, fmt.Errorf("unknown whence: %d", whence)
	}
	if newOffset < 0 {
		return 0, fmt.Errorf("offset before start of stream: %d (%d + %d)", newOffset, r.offset, offset)
	}
	r.offset = newOffset
	return r.offset, nil
}
