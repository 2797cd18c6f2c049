package seekable

import (
	"bytes"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zeekstd-go/seekable/env"
)

// writerSinkIO adapts a plain io.Writer as an env.WSink for the common
// case where no custom frame routing is needed.
type writerSinkIO struct {
	w io.Writer
}

func (s *writerSinkIO) WriteFrame(p []byte) (int, error)     { return s.w.Write(p) }
func (s *writerSinkIO) WriteSeekTable(p []byte) (int, error) { return s.w.Write(p) }

// frameWriter adapts an env.WSink's WriteFrame method as a plain
// io.Writer so it can sit underneath RawEncoder.
type frameWriter struct {
	sink env.WSink
}

func (f *frameWriter) Write(p []byte) (int, error) {
	return f.sink.WriteFrame(p)
}

// Writer is the buffered, io.WriteCloser-shaped encoder (spec's §4.E
// buffered encoder): written bytes are split into frames by the
// FrameSizePolicy, each closed frame is appended to an in-memory
// SeekTable, and Close flushes the trailing seek-table skippable frame. Grounded on the teacher's writer.go/pkg/writer.go
// (NewWriter, Write, Close, writeSeekTable).
type Writer struct {
	raw   *RawEncoder
	table *SeekTable
	sink  env.WSink
	o     encoderOptions

	closeOnce sync.Once
	closeErr  error
}

var (
	_ io.Writer = (*Writer)(nil)
	_ io.Closer = (*Writer)(nil)
)

// NewWriter wraps w into a seekable ZSTD stream. Resulting stream can be
// randomly accessed through Reader/Decoder once fully written.
func NewWriter(w io.Writer, opts ...EncoderOption) (*Writer, error) {
	var o encoderOptions
	o.setDefault()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	sink := o.sink
	if sink == nil {
		sink = &writerSinkIO{w: w}
	}

	sw := &Writer{
		table: NewSeekTable(o.checksum),
		sink:  sink,
		o:     o,
	}
	raw, err := NewRawEncoder(&frameWriter{sink: sink}, o.policy, sw.onFrame, o.zstdEOpts...)
	if err != nil {
		return nil, err
	}
	sw.raw = raw
	if o.prefix != nil {
		sw.raw.SetPrefix(o.prefix)
	}
	return sw, nil
}

func (s *Writer) onFrame(cSize, dSize, checksum uint32) error {
	if !s.o.checksum {
		checksum = 0
	}
	if err := s.table.Add(cSize, dSize, checksum); err != nil {
		return err
	}
	s.o.logger.Debug("appended frame",
		zap.Uint32("compressedSize", cSize),
		zap.Uint32("decompressedSize", dSize),
		zap.Uint32("checksum", checksum))
	return nil
}

// Write frames src into the stream. Frame boundaries follow the
// configured FrameSizePolicy; a single Write call may span several
// frames.
func (s *Writer) Write(src []byte) (int, error) {
	return s.raw.Write(src)
}

// Close flushes the final frame (if any bytes remain unflushed) and
// writes the trailing seek-table skippable frame. The caller remains
// responsible for closing the underlying io.Writer.
func (s *Writer) Close() (err error) {
	s.closeOnce.Do(func() {
		s.closeErr = multierr.Append(s.closeErr, s.raw.Close())
		s.closeErr = multierr.Append(s.closeErr, s.writeSeekTable())
	})
	return s.closeErr
}

// seekTableStagingBufferSize bounds the chunk size writeSeekTable asks the
// serializer for at once, so a seek table with millions of frames doesn't
// require materializing the whole skippable frame in memory before it
// reaches the sink. Mirrors the teacher's buffered-output sizing and the
// Rust reference's finish_format loop over a fixed out_buf.
const seekTableStagingBufferSize = 64 * 1024

func (s *Writer) writeSeekTable() error {
	ser, err := newSeekTableSerializer(s.table, FormatFoot)
	if err != nil {
		return err
	}

	stage := make([]byte, seekTableStagingBufferSize)
	if len(stage) > ser.EncodedLen() {
		stage = stage[:ser.EncodedLen()]
	}
	for {
		n, err := ser.WriteInto(stage)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := s.sink.WriteSeekTable(stage[:n]); err != nil {
			return wrapErr(KindIO, err, "failed to write seek table")
		}
	}
}

// SeekTable exposes the table built so far; only meaningful after Close.
func (s *Writer) SeekTable() *SeekTable {
	return s.table
}

// Encoder is the byte-oriented counterpart to Writer, for callers that
// want compressed bytes back directly rather than writing through an
// io.Writer (teacher's encoder.go: Encode/EndStream).
type Encoder interface {
	// Encode compresses src into zero or more complete frames (depending
	// on the frame size policy) and returns their compressed bytes.
	Encode(src []byte) ([]byte, error)
	// EndStream closes any partial frame and returns that frame's
	// compressed bytes (if any) followed by the seek-table skippable
	// frame; all of it must be appended to the output.
	EndStream() ([]byte, error)
}

type bufferEncoder struct {
	w   *Writer
	buf bytes.Buffer
}

// NewByteEncoder returns a byte-oriented Encoder.
func NewByteEncoder(opts ...EncoderOption) (Encoder, error) {
	e := &bufferEncoder{}
	w, err := NewWriter(&e.buf, opts...)
	if err != nil {
		return nil, err
	}
	e.w = w
	return e, nil
}

func (e *bufferEncoder) Encode(src []byte) ([]byte, error) {
	e.buf.Reset()
	if _, err := e.w.Write(src); err != nil {
		return nil, err
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

func (e *bufferEncoder) EndStream() ([]byte, error) {
	e.buf.Reset()
	if err := e.w.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}
