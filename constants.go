package seekable

import "math"

// Wire format constants for the seekable container: a sequence of
// independent Zstandard frames followed by a trailing skippable frame
// holding the seek table.
//
// https://github.com/facebook/zstd/blob/dev/contrib/seekable_format/zstd_seekable_compression_format.md
const (
	skippableFrameMagic uint32 = 0x184D2A50
	seekableTag         uint32 = 0xE
	seekableMagicNumber uint32 = 0x8F92EAB1

	// skippableHeaderSize is Magic_Number (4 bytes) + Frame_Size (4 bytes).
	skippableHeaderSize = 8

	// seekTableIntegritySize is Number_Of_Frames (4) + Seek_Table_Descriptor (1) + Seekable_Magic_Number (4).
	seekTableIntegritySize = 9

	// sizePerFrameEntryNoChecksum and sizePerFrameEntryChecksum are the two
	// possible Seek_Table_Entries widths, selected by the Checksum_Flag bit.
	sizePerFrameEntryNoChecksum = 8
	sizePerFrameEntryChecksum   = 12

	// maxFrames bounds the number of frames a seek table may describe.
	maxFrames int64 = 0x08000000

	// maxFrameDSize bounds the decompressed size of a single frame (1 GiB).
	maxFrameDSize uint32 = 0x40000000

	// maxDecoderFrameSize guards against OOM from untrusted skippable-frame sizes.
	maxDecoderFrameSize = 128 << 20

	// defaultUncompressedFrameLimit is the default Uncompressed() policy threshold.
	defaultUncompressedFrameLimit uint32 = 2 << 20

	maxChunkSize int64 = math.MaxUint32
)

// Format selects where the seek-table integrity field is located relative
// to the skippable frame that carries it.
type Format int

const (
	// FormatFoot places the integrity field as the last seekTableIntegritySize
	// bytes of the stream. This is what every known producer writes.
	FormatFoot Format = iota
	// FormatHead places the integrity field immediately after the skippable
	// frame's header, before the seek table entries. Decode-only: nothing in
	// this module ever writes it, but the codec can parse it.
	FormatHead
)
