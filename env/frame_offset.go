// Package env provides the pluggable source/sink abstractions the seek
// table's encoder and decoder read and write through, plus the
// post-processed index entry type used to answer offset lookups.
package env

import (
	"go.uber.org/zap/zapcore"
)

// FrameOffsetEntry is the post-processed, cumulative-offset view of a
// single Seek_Table_Entries record, suitable for indexing by either
// compressed or decompressed offset.
type FrameOffsetEntry struct {
	// ID is the sequence number of the frame, starting at 0.
	ID int64

	// CompOffset is the frame's starting offset within the compressed stream.
	CompOffset uint64
	// DecompOffset is the frame's starting offset within the decompressed stream.
	DecompOffset uint64
	// CompSize is the size of the compressed frame.
	CompSize uint32
	// DecompSize is the size of the frame's decompressed content. Zero for
	// skippable or otherwise empty frames.
	DecompSize uint32

	// Checksum is the lower 32 bits of the XXH64 digest of the frame's
	// uncompressed content, valid only when HasChecksum is true.
	Checksum    uint32
	HasChecksum bool
}

func (o *FrameOffsetEntry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("ID", o.ID)
	enc.AddUint64("CompOffset", o.CompOffset)
	enc.AddUint64("DecompOffset", o.DecompOffset)
	enc.AddUint32("CompSize", o.CompSize)
	enc.AddUint32("DecompSize", o.DecompSize)
	if o.HasChecksum {
		enc.AddUint32("Checksum", o.Checksum)
	}
	return nil
}

// LessByDecompOffset orders entries by their decompressed-stream offset,
// used for the btree index that answers uncompressed-offset lookups.
func LessByDecompOffset(a, b *FrameOffsetEntry) bool {
	return a.DecompOffset < b.DecompOffset
}

// LessByCompOffset orders entries by their compressed-stream offset, used
// to answer compressed-offset lookups (e.g. resuming a decoder mid-stream).
func LessByCompOffset(a, b *FrameOffsetEntry) bool {
	return a.CompOffset < b.CompOffset
}
