package seekable

import (
	"github.com/google/btree"

	"github.com/zeekstd-go/seekable/env"
)

// SeekTable is the in-memory representation of a stream's seek table: an
// ordered log of per-frame (compressed size, decompressed size, checksum)
// records plus two offset indices for fast lookup, generalized from the
// teacher's decoder-only btree index (see reader.go in the reference
// package) so the same structure serves both the encoder, which appends
// to it frame by frame, and the decoder, which looks entries up by offset.
type SeekTable struct {
	entries []env.FrameOffsetEntry

	byDecomp *btree.BTreeG[*env.FrameOffsetEntry]
	byComp   *btree.BTreeG[*env.FrameOffsetEntry]

	checksumFlag bool

	compOffset   uint64
	decompOffset uint64
}

// btreeDegree matches the teacher's reader.go fan-out choice.
const btreeDegree = 8

// NewSeekTable returns an empty seek table. withChecksum controls whether
// entries carry the per-frame checksum passed to Add (and whether the
// serialized descriptor's ChecksumFlag is set).
func NewSeekTable(withChecksum bool) *SeekTable {
	return &SeekTable{
		byDecomp:     btree.NewG(btreeDegree, env.LessByDecompOffset),
		byComp:       btree.NewG(btreeDegree, env.LessByCompOffset),
		checksumFlag: withChecksum,
	}
}

// Add appends a completed frame's bookkeeping to the table. checksum is
// only honored when the table was constructed WithChecksum(true).
func (t *SeekTable) Add(cSize, dSize uint32, checksum uint32) error {
	if int64(len(t.entries)) >= maxFrames {
		return newErr(KindFrameIndexTooLarge, "cannot add more than %d frames", maxFrames)
	}
	if dSize > maxFrameDSize {
		return newErr(KindFrameSizeTooLarge, "decompressed frame size %d exceeds %d", dSize, maxFrameDSize)
	}

	entry := env.FrameOffsetEntry{
		ID:           int64(len(t.entries)),
		CompOffset:   t.compOffset,
		DecompOffset: t.decompOffset,
		CompSize:     cSize,
		DecompSize:   dSize,
		Checksum:     checksum,
		HasChecksum:  t.checksumFlag,
	}
	t.entries = append(t.entries, entry)
	t.byDecomp.ReplaceOrInsert(&t.entries[len(t.entries)-1])
	t.byComp.ReplaceOrInsert(&t.entries[len(t.entries)-1])

	t.compOffset += uint64(cSize)
	t.decompOffset += uint64(dSize)
	return nil
}

// NumFrames returns the number of frames recorded in the table.
func (t *SeekTable) NumFrames() int64 {
	return int64(len(t.entries))
}

// Size returns the total decompressed size of the stream described by the table.
func (t *SeekTable) Size() uint64 {
	return t.decompOffset
}

// CompressedSize returns the total compressed size of the stream's frames
// (not counting the trailing seek-table skippable frame).
func (t *SeekTable) CompressedSize() uint64 {
	return t.compOffset
}

// HasChecksums reports whether entries in this table carry a checksum.
func (t *SeekTable) HasChecksums() bool {
	return t.checksumFlag
}

// FrameAtID returns the entry for frame id, or nil if id is out of range.
func (t *SeekTable) FrameAtID(id int64) *env.FrameOffsetEntry {
	if id < 0 || id >= int64(len(t.entries)) {
		return nil
	}
	return &t.entries[id]
}

// FrameIndexAtD returns the frame covering decompressed-stream offset off.
// For off at or beyond the end of the stream, it saturates to the last
// frame (N-1) rather than reporting an error, matching
// original_source/lib/src/seek_table.rs's frame_index_at. Returns nil only
// when the table has no frames at all. This is the decompressed-offset
// binary search the format's random-access contract requires, implemented
// as a btree order-statistic descent rather than a hand rolled binary
// search (see the SeekTable type doc).
func (t *SeekTable) FrameIndexAtD(off uint64) *env.FrameOffsetEntry {
	if len(t.entries) == 0 {
		return nil
	}
	if off >= t.decompOffset {
		return &t.entries[len(t.entries)-1]
	}
	var found *env.FrameOffsetEntry
	t.byDecomp.DescendLessOrEqual(&env.FrameOffsetEntry{DecompOffset: off}, func(e *env.FrameOffsetEntry) bool {
		found = e
		return false
	})
	return found
}

// FrameIndexAtC returns the frame covering compressed-stream offset off.
// For off at or beyond the end of the stream, it saturates to the last
// frame (N-1) rather than reporting an error. Returns nil only when the
// table has no frames at all.
func (t *SeekTable) FrameIndexAtC(off uint64) *env.FrameOffsetEntry {
	if len(t.entries) == 0 {
		return nil
	}
	if off >= t.compOffset {
		return &t.entries[len(t.entries)-1]
	}
	var found *env.FrameOffsetEntry
	t.byComp.DescendLessOrEqual(&env.FrameOffsetEntry{CompOffset: off}, func(e *env.FrameOffsetEntry) bool {
		found = e
		return false
	})
	return found
}

// FrameChecksum returns the stored checksum for frame id and whether the
// table carries checksums at all.
func (t *SeekTable) FrameChecksum(id int64) (checksum uint32, ok bool) {
	e := t.FrameAtID(id)
	if e == nil || !e.HasChecksum {
		return 0, false
	}
	return e.Checksum, true
}
