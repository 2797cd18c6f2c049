package env

import (
	"errors"
	"fmt"
	"io"
)

// WSink can be used to inject a custom frame/seek-table sink that is
// different from a plain io.Writer. Useful when, for example, frames need
// to be routed through content-defined chunking before hitting disk.
type WSink interface {
	// WriteFrame receives compressed frame bytes as the zstd encoder
	// produces them; one frame may arrive over several calls.
	WriteFrame(p []byte) (n int, err error)
	// WriteSeekTable is called on Close, one or more times, with
	// consecutive chunks of the trailing skippable seek-table frame.
	WriteSeekTable(p []byte) (n int, err error)
}

// Source is the pluggable view of a seekable byte source that the
// decoder's seek-table loader and random-access reads go through. It
// generalizes the reference implementation's Seekable trait (set_offset /
// read / seek_table_integrity) to Go's io.ReaderAt-shaped world.
type Source interface {
	// GetFrameByIndex returns the compressed bytes of the frame described
	// by index.
	GetFrameByIndex(index FrameOffsetEntry) ([]byte, error)
	// ReadFooter returns trailing bytes of the stream ending with its last
	// seekTableIntegritySize bytes (the default source returns exactly
	// those; the bytes source returns its whole blob), used to locate and
	// size the seek table skippable frame.
	ReadFooter() ([]byte, error)
	// ReadSkipFrame returns the full skippable frame (including its magic
	// number and frame-size header) located skippableFrameOffset bytes
	// before the end of the stream.
	ReadSkipFrame(skippableFrameOffset int64) ([]byte, error)
}

// readSeekerSource is the default Source backed by an io.ReadSeeker,
// preferring io.ReaderAt for concurrent random access when available.
type readSeekerSource struct {
	rs io.ReadSeeker
}

// NewReadSeekerSource wraps rs as a Source.
func NewReadSeekerSource(rs io.ReadSeeker) Source {
	return &readSeekerSource{rs: rs}
}

func (s *readSeekerSource) GetFrameByIndex(index FrameOffsetEntry) (p []byte, err error) {
	p = make([]byte, index.CompSize)
	off := int64(index.CompOffset)

	switch v := s.rs.(type) {
	case io.ReaderAt:
		_, err = v.ReadAt(p, off)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		if _, err = v.Seek(off, io.SeekStart); err != nil {
			return nil, err
		}
		_, err = io.ReadFull(s.rs, p)
	}
	return
}

func (s *readSeekerSource) ReadFooter() ([]byte, error) {
	const integritySize = 9 // seekTableIntegritySize, duplicated to avoid an import cycle
	n, err := s.rs.Seek(-integritySize, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to seek to footer: %w", err)
	}
	buf := make([]byte, integritySize)
	if _, err = io.ReadFull(s.rs, buf); err != nil {
		return nil, fmt.Errorf("failed to read footer at %d: %w", n, err)
	}
	return buf, nil
}

func (s *readSeekerSource) ReadSkipFrame(skippableFrameOffset int64) ([]byte, error) {
	n, err := s.rs.Seek(-skippableFrameOffset, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to seek to %d: %w", -skippableFrameOffset, err)
	}
	buf := make([]byte, skippableFrameOffset)
	if _, err = io.ReadFull(s.rs, buf); err != nil {
		return nil, fmt.Errorf("failed to read skippable frame at %d: %w", n, err)
	}
	return buf, nil
}

// bytesSource is a Source over an in-memory seek table blob, used by the
// byte-oriented Decoder which never owns the compressed stream itself.
type bytesSource struct {
	seekTable []byte
}

// NewBytesSource wraps a standalone seek-table blob (the trailing
// skippable frame of a stream) as a Source. GetFrameByIndex is never called on it:
// the byte-oriented Decoder only resolves offsets, it doesn't fetch frames.
func NewBytesSource(seekTable []byte) Source {
	return &bytesSource{seekTable: seekTable}
}

func (b *bytesSource) GetFrameByIndex(FrameOffsetEntry) ([]byte, error) {
	return nil, fmt.Errorf("GetFrameByIndex is not supported on a table-only source")
}

func (b *bytesSource) ReadFooter() ([]byte, error) {
	return b.seekTable, nil
}

func (b *bytesSource) ReadSkipFrame(int64) ([]byte, error) {
	return b.seekTable, nil
}
