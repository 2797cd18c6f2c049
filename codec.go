package seekable

/*
Seek table wire codec.

The stream ends with a skippable frame:

	|Skippable_Magic_Number|Frame_Size|[Seek_Table_Entries]|Seek_Table_Integrity|
	|4 bytes                |4 bytes  |8-12 bytes each     |9 bytes             |

Seek_Table_Integrity (Number_Of_Frames u32 LE, Seek_Table_Descriptor byte,
Seekable_Magic_Number u32 LE) is conventionally the last 9 bytes of the
stream (Format Foot). A producer may instead place it immediately after
the skippable frame header (Format Head); this module only ever writes
Foot but parses both, per original_source/lib/src/seek_table.rs.

https://github.com/facebook/zstd/blob/dev/contrib/seekable_format/zstd_seekable_compression_format.md
*/

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/zeekstd-go/seekable/env"
)

// seekTableDescriptor is the one-byte bitfield at offset 4 of the
// integrity field: bit 7 is Checksum_Flag, bits 2-6 are reserved and must
// be zero, bits 0-1 are unused.
type seekTableDescriptor struct {
	ChecksumFlag bool
}

func (d *seekTableDescriptor) encode() byte {
	if d.ChecksumFlag {
		return 1 << 7
	}
	return 0
}

func (d *seekTableDescriptor) decode(b byte) error {
	reserved := (b << 1) >> 3
	if reserved != 0 {
		return newErr(KindCorrupt, "descriptor reserved bits %08b != 0", reserved)
	}
	d.ChecksumFlag = b&(1<<7) != 0
	return nil
}

func (d *seekTableDescriptor) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("ChecksumFlag", d.ChecksumFlag)
	return nil
}

// seekTableIntegrity is the Number_Of_Frames/Descriptor/Magic trailer.
type seekTableIntegrity struct {
	NumberOfFrames      uint32
	SeekTableDescriptor seekTableDescriptor
	SeekableMagicNumber uint32
}

func (f *seekTableIntegrity) marshalInline(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], f.NumberOfFrames)
	dst[4] = f.SeekTableDescriptor.encode()
	binary.LittleEndian.PutUint32(dst[5:], seekableMagicNumber)
}

func (f *seekTableIntegrity) unmarshal(p []byte) error {
	if len(p) != seekTableIntegritySize {
		return newErr(KindCorrupt, "integrity field length %d != %d", len(p), seekTableIntegritySize)
	}
	f.NumberOfFrames = binary.LittleEndian.Uint32(p[0:])
	if err := f.SeekTableDescriptor.decode(p[4]); err != nil {
		return err
	}
	f.SeekableMagicNumber = binary.LittleEndian.Uint32(p[5:])
	if f.SeekableMagicNumber != seekableMagicNumber {
		return newErr(KindCorrupt, "magic mismatch %#x != %#x", f.SeekableMagicNumber, seekableMagicNumber)
	}
	return nil
}

func (f *seekTableIntegrity) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint32("NumberOfFrames", f.NumberOfFrames)
	_ = enc.AddObject("SeekTableDescriptor", &f.SeekTableDescriptor)
	enc.AddUint32("SeekableMagicNumber", f.SeekableMagicNumber)
	return nil
}

func entrySize(checksum bool) int {
	if checksum {
		return sizePerFrameEntryChecksum
	}
	return sizePerFrameEntryNoChecksum
}

// createSkippableFrame wraps payload as a zstd skippable frame tagged
// with tag (0 to 0xf), per
// https://github.com/facebook/zstd/blob/dev/doc/zstd_compression_format.md#skippable-frames
func createSkippableFrame(tag uint32, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if tag > 0xf {
		return nil, fmt.Errorf("requested tag (%d) > 0xf", tag)
	}
	if int64(len(payload)) > maxChunkSize {
		return nil, fmt.Errorf("skippable frame payload (%d) exceeds max uint32", len(payload))
	}

	dst := make([]byte, skippableHeaderSize, len(payload)+skippableHeaderSize)
	binary.LittleEndian.PutUint32(dst[0:], skippableFrameMagic+tag)
	binary.LittleEndian.PutUint32(dst[4:], uint32(len(payload)))
	return append(dst, payload...), nil
}

// seekTableSerializer is a stateful, resettable, byte-oriented encoder for
// a SeekTable's wire representation (skippable frame header, entries,
// integrity trailer, Format Foot only). Grounded on
// original_source/lib/src/seek_table.rs's FootSerializer: rather than
// materializing the whole buffer and slicing it out, it tracks a single
// write_pos counter and reconstructs each 4-byte little-endian field from
// scratch whenever asked, writing only the bytes of that field the
// caller's buffer still has room for. That makes WriteInto's output
// invariant under any segmentation of the destination buffer (down to one
// byte at a time) and Reset trivial: rewinding write_pos replays the exact
// same bytes.
type seekTableSerializer struct {
	table  *SeekTable
	format Format

	writePos   int
	frameIndex int64
}

// newSeekTableSerializer returns a serializer for t in the given Format.
// Only FormatFoot is supported for writing: nothing in this format's
// ecosystem produces FormatHead streams, and writing one would be
// unreadable by those other implementations.
func newSeekTableSerializer(t *SeekTable, format Format) (*seekTableSerializer, error) {
	if format != FormatFoot {
		return nil, fmt.Errorf("writing Format Head is not supported, only Foot")
	}
	if t.NumFrames() > maxFrames {
		return nil, newErr(KindFrameIndexTooLarge, "too many frames: %d", t.NumFrames())
	}
	return &seekTableSerializer{table: t, format: format}, nil
}

// EncodedLen returns the total size, in bytes, of the serialized
// skippable frame (header included).
func (s *seekTableSerializer) EncodedLen() int {
	return skippableHeaderSize + int(s.table.NumFrames())*entrySize(s.table.checksumFlag) + seekTableIntegritySize
}

// Reset rewinds serialization to the beginning. Safe to call at any time;
// the next WriteInto call reproduces the exact same bytes from offset 0.
func (s *seekTableSerializer) Reset() {
	s.writePos = 0
	s.frameIndex = 0
}

// WriteInto emits the next portion of the serialized seek table into dst
// and returns the number of bytes written. Call it repeatedly, advancing
// past the written bytes each time, until it returns 0: that means
// serialization is complete. Returns ErrBufferTooSmall if dst is empty
// while bytes remain, since an empty buffer can't make any progress.
func (s *seekTableSerializer) WriteInto(dst []byte) (int, error) {
	total := s.EncodedLen()
	if s.writePos >= total {
		return 0, nil
	}
	if len(dst) == 0 {
		return 0, ErrBufferTooSmall
	}

	bufPos := 0
	sz := entrySize(s.table.checksumFlag)

	// writeField copies whatever's left of value's little-endian bytes at
	// fieldOffset that dst still has room for, advancing writePos and
	// bufPos. A no-op once that field is already fully written.
	writeField := func(value uint32, fieldOffset int) {
		if s.writePos >= fieldOffset+4 || bufPos >= len(dst) {
			return
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], value)
		valOffset := s.writePos - fieldOffset
		n := fieldOffset + 4 - s.writePos
		if avail := len(dst) - bufPos; n > avail {
			n = avail
		}
		copy(dst[bufPos:bufPos+n], b[valOffset:valOffset+n])
		bufPos += n
		s.writePos += n
	}
	writeByte := func(value byte, fieldOffset int) {
		if s.writePos >= fieldOffset+1 || bufPos >= len(dst) {
			return
		}
		dst[bufPos] = value
		bufPos++
		s.writePos++
	}

	writeField(skippableFrameMagic+seekableTag, 0)
	writeField(uint32(total-skippableHeaderSize), 4)

	for s.frameIndex < s.table.NumFrames() {
		e := &s.table.entries[s.frameIndex]
		offset := skippableHeaderSize + int(s.frameIndex)*sz
		writeField(e.CompSize, offset)
		writeField(e.DecompSize, offset+4)
		if s.table.checksumFlag {
			writeField(e.Checksum, offset+8)
		}
		if s.writePos < offset+sz {
			// Buffer ran out mid-entry; the same entry resumes next call.
			return bufPos, nil
		}
		s.frameIndex++
	}

	integrityOffset := skippableHeaderSize + int(s.table.NumFrames())*sz
	descriptor := seekTableDescriptor{ChecksumFlag: s.table.checksumFlag}
	writeField(uint32(s.table.NumFrames()), integrityOffset)
	writeByte(descriptor.encode(), integrityOffset+4)
	writeField(seekableMagicNumber, integrityOffset+5)

	return bufPos, nil
}

// MarshalSeekTable serializes t as a complete skippable frame (magic,
// size, entries, integrity trailer) in the requested Format, draining a
// seekTableSerializer in one call. Streaming producers that want to bound
// their memory use (Writer.writeSeekTable) should drive the serializer
// directly instead.
func MarshalSeekTable(t *SeekTable, format Format) ([]byte, error) {
	ser, err := newSeekTableSerializer(t, format)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ser.EncodedLen())
	pos := 0
	for {
		n, err := ser.WriteInto(buf[pos:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		pos += n
	}
	return buf, nil
}

// ParseSeekTable reads the trailing seek table off src and reconstructs a
// SeekTable. It supports both FormatFoot (integrity field is the final 9
// bytes of the stream) and FormatHead (integrity field immediately
// follows the skippable frame header). FormatHead is parsed only from a
// source whose ReadSkipFrame returns the whole seek-table blob, such as
// env.NewBytesSource; through env.NewReadSeekerSource it fails, since the
// read starts maxDecoderFrameSize bytes before the end of the stream.
func ParseSeekTable(src env.Source, format Format) (*SeekTable, error) {
	footerBuf, err := src.ReadFooter()
	if err != nil {
		return nil, wrapErr(KindIO, err, "failed to read footer")
	}
	if len(footerBuf) < seekTableIntegritySize {
		return nil, newErr(KindCorrupt, "footer too small: %d bytes", len(footerBuf))
	}

	var integrity seekTableIntegrity
	if format == FormatFoot {
		if err := integrity.unmarshal(footerBuf[len(footerBuf)-seekTableIntegritySize:]); err != nil {
			return nil, err
		}
	}

	sz := int64(entrySize(false))
	if format == FormatFoot && integrity.SeekTableDescriptor.ChecksumFlag {
		sz = int64(entrySize(true))
	}

	// Distance, from the end of the stream, back to the start of the
	// skippable frame header. For Foot we know the exact size from the
	// footer we already parsed; for Head we haven't read the descriptor
	// yet, so fall back to the largest frame this decoder will accept and
	// re-validate once the real header is in hand.
	skippableFrameOffset := seekTableIntegritySize + sz*int64(integrity.NumberOfFrames) + skippableHeaderSize
	if format == FormatHead {
		skippableFrameOffset = maxDecoderFrameSize
	}

	if skippableFrameOffset > maxDecoderFrameSize {
		return nil, newErr(KindFrameSizeTooLarge, "skippable frame offset %d exceeds %d", skippableFrameOffset, maxDecoderFrameSize)
	}

	buf, err := src.ReadSkipFrame(skippableFrameOffset)
	if err != nil {
		return nil, wrapErr(KindIO, err, "failed to read skippable frame")
	}
	if len(buf) < skippableHeaderSize+seekTableIntegritySize {
		return nil, newErr(KindCorrupt, "skippable frame too small: %d bytes", len(buf))
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != skippableFrameMagic+seekableTag {
		return nil, newErr(KindCorrupt, "skippable frame magic mismatch %#x != %#x", magic, skippableFrameMagic+seekableTag)
	}
	frameSize := int64(binary.LittleEndian.Uint32(buf[4:8]))
	if frameSize != int64(len(buf))-skippableHeaderSize {
		return nil, newErr(KindCorrupt, "skippable frame size mismatch: header says %d, have %d", frameSize, len(buf)-skippableHeaderSize)
	}

	payload := buf[skippableHeaderSize:]

	if format == FormatHead {
		if err := integrity.unmarshal(payload[:seekTableIntegritySize]); err != nil {
			return nil, err
		}
		entriesBuf := payload[seekTableIntegritySize:]
		return buildSeekTable(entriesBuf, integrity)
	}

	entriesBuf := payload[:len(payload)-seekTableIntegritySize]
	return buildSeekTable(entriesBuf, integrity)
}

func buildSeekTable(entriesBuf []byte, integrity seekTableIntegrity) (*SeekTable, error) {
	sz := entrySize(integrity.SeekTableDescriptor.ChecksumFlag)
	if len(entriesBuf)%sz != 0 {
		return nil, newErr(KindCorrupt, "entries size %d is not a multiple of %d", len(entriesBuf), sz)
	}
	if int64(len(entriesBuf)/sz) != int64(integrity.NumberOfFrames) {
		return nil, newErr(KindCorrupt, "entry count %d != declared %d", len(entriesBuf)/sz, integrity.NumberOfFrames)
	}

	t := NewSeekTable(integrity.SeekTableDescriptor.ChecksumFlag)
	for off := 0; off < len(entriesBuf); off += sz {
		e := entriesBuf[off : off+sz]
		cSize := binary.LittleEndian.Uint32(e[0:])
		dSize := binary.LittleEndian.Uint32(e[4:])
		var checksum uint32
		if sz >= sizePerFrameEntryChecksum {
			checksum = binary.LittleEndian.Uint32(e[8:])
		}
		if err := t.Add(cSize, dSize, checksum); err != nil {
			return nil, err
		}
	}
	return t, nil
}
