package seekable

import (
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// RawDecoder is the low-level, unbuffered streaming decoder: it reads a
// contiguous run of frames [startFrame, endFrame) from src (which the
// caller must already have positioned at the compressed offset of
// startFrame — frame_start_c in the reference implementation) and
// produces their concatenated decompressed content. It detects frame
// boundaries by bounding each frame's compressed input to exactly its
// recorded size (frame_end_c), so the underlying zstd session reports
// end-of-frame (io.EOF) exactly where the seek table says it should,
// without RawDecoder having to parse zstd frame headers itself.
//
// Grounded on original_source/lib/src/decode.rs's Decoder and its
// partly_decompression test (reading a sub-range of frames, not
// necessarily starting at frame 0).
type RawDecoder struct {
	engine *zstdEngine
	src    io.Reader
	table  *SeekTable

	cur int64
	end int64

	limited io.Reader

	verifyChecksum bool
	hasher         *xxhash.Digest

	prefix []byte
}

// NewRawDecoder returns a RawDecoder over frames [startFrame, endFrame)
// of table, reading compressed bytes from src. src must already be
// positioned at the start of startFrame's compressed data.
func NewRawDecoder(src io.Reader, table *SeekTable, startFrame, endFrame int64, dopts ...zstd.DOption) *RawDecoder {
	return &RawDecoder{
		engine: newZstdEngine(nil, dopts),
		src:    src,
		table:  table,
		cur:    startFrame,
		end:    endFrame,
		hasher: xxhash.New(),
	}
}

// SetPrefix binds raw content to be referenced by the next frame opened.
func (d *RawDecoder) SetPrefix(prefix []byte) {
	d.prefix = prefix
}

// VerifyChecksums enables comparing each decoded frame's XXH64 digest
// against the seek table's stored checksum, surfacing KindChecksumMismatch
// from Read if they differ.
func (d *RawDecoder) VerifyChecksums(v bool) {
	d.verifyChecksum = v
}

func (d *RawDecoder) openCurrentFrame() error {
	entry := d.table.FrameAtID(d.cur)
	if entry == nil {
		return newErr(KindFrameIndexTooLarge, "frame index %d >= num_frames %d", d.cur, d.table.NumFrames())
	}
	d.limited = io.LimitReader(d.src, int64(entry.CompSize))
	d.engine.setPrefix(d.prefix)
	d.hasher.Reset()
	return d.engine.openDecodeFrame(d.limited)
}

// Read implements io.Reader, decompressing across frame boundaries
// transparently until endFrame is reached.
func (d *RawDecoder) Read(dst []byte) (int, error) {
	for {
		if d.cur >= d.end {
			return 0, io.EOF
		}
		if d.engine.dec == nil {
			if err := d.openCurrentFrame(); err != nil {
				return 0, err
			}
		}

		n, err := d.engine.decodeRead(dst)
		if n > 0 {
			d.hasher.Write(dst[:n])
		}
		if err == io.EOF {
			if verifyErr := d.verifyCurrentFrame(); verifyErr != nil {
				return n, verifyErr
			}
			d.engine.dec = nil
			d.cur++
			if n > 0 {
				return n, nil
			}
			continue // zero-byte frame or exact-fit read: advance immediately
		}
		return n, err
	}
}

func (d *RawDecoder) verifyCurrentFrame() error {
	if !d.verifyChecksum {
		return nil
	}
	entry := d.table.FrameAtID(d.cur)
	if entry == nil || !entry.HasChecksum {
		return ErrMissingChecksum
	}
	got := uint32(d.hasher.Sum64())
	if got != entry.Checksum {
		return wrapErr(KindChecksumMismatch, nil, "frame %d: expected %#x, got %#x", d.cur, entry.Checksum, got)
	}
	return nil
}

func (d *RawDecoder) Close() error {
	d.engine.close()
	return nil
}
