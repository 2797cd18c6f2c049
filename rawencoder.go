package seekable

import (
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// countingWriter tracks the number of bytes written to an underlying sink,
// so RawEncoder can learn a frame's compressed size without the zstd
// engine having to expose one.
type countingWriter struct {
	w     io.Writer
	count uint32
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += uint32(n)
	return n, err
}

// FrameCompleteFunc is invoked by RawEncoder every time a frame closes,
// reporting its final compressed size, decompressed size, and checksum
// (checksum is always computed; whether it is meaningful to the caller
// depends on whether the seek table being built carries checksums).
type FrameCompleteFunc func(cSize, dSize uint32, checksum uint32) error

type rawEncoderState int

const (
	// stateInFrame is the steady state: the engine has an open zstd
	// session and is accepting Write calls into the current frame.
	stateInFrame rawEncoderState = iota
	// stateFlushing is entered while EndFrame is draining the zstd
	// session's footer to the sink. It only exists as a named state to
	// make the ordering invariant below explicit; because this
	// implementation uses Go's synchronous io.Writer rather than a
	// bounded-output-buffer FFI loop, the flush always runs to
	// completion inside endFrame before the state returns to InFrame{0,0}.
	stateFlushing
)

// RawEncoder is the low-level, unbuffered streaming encoder: each Write
// call compresses into the current zstd frame, and frames are closed
// according to policy (or on an explicit EndFrame call). It has no
// knowledge of a seek table; FrameCompleteFunc is the encoder's only way
// to report finished frames to a caller that wants to build one.
//
// Grounded on original_source/lib/src/encode.rs's Encoder::compress/
// end_frame state machine (InFrame{c_size,d_size} -> Flushing{c_size,
// d_size} -> InFrame{0,0}). The critical ordering rule preserved here is
// that end_frame must observe "is the flush complete" before it looks at
// "is the output full": this implementation satisfies that by letting
// endFrame's call to the zstd engine's Close block until the frame's
// footer is entirely written, so cSize is only read once flushing is
// unambiguously done.
type RawEncoder struct {
	engine *zstdEngine
	sink   *countingWriter
	policy FrameSizePolicy

	state rawEncoderState

	dSize  uint32
	hasher *xxhash.Digest

	onFrame FrameCompleteFunc

	prefix []byte
}

// NewRawEncoder returns a RawEncoder writing compressed frames to w. It
// fails construction with KindFrameSizeTooLarge if policy's configured
// frame size exceeds maxFrameDSize.
func NewRawEncoder(w io.Writer, policy FrameSizePolicy, onFrame FrameCompleteFunc, eopts ...zstd.EOption) (*RawEncoder, error) {
	if policy == nil {
		policy = defaultFrameSizePolicy()
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	return &RawEncoder{
		engine:  newZstdEngine(eopts, nil),
		sink:    &countingWriter{w: w},
		policy:  policy,
		hasher:  xxhash.New(),
		onFrame: onFrame,
	}, nil
}

// SetPrefix binds raw content to be referenced by every frame opened from
// now on. Sessions drop any bound prefix once a frame ends, so the prefix
// is rebound each time a new frame starts.
func (e *RawEncoder) SetPrefix(prefix []byte) {
	e.prefix = prefix
}

func (e *RawEncoder) ensureFrameOpen() error {
	if e.engine.enc != nil {
		return nil
	}
	e.engine.setPrefix(e.prefix)
	return e.engine.openEncodeFrame(e.sink)
}

// Write compresses p into the current frame, ending the frame (per
// policy) as needed, possibly multiple times if p is large enough to
// span several frame boundaries. Each iteration feeds at most
// remaining_frame_space() bytes to the zstd engine, per
// original_source/lib/src/encode.rs's Encoder::compress, so a single
// oversized Write call is split across as many frames as the policy
// demands rather than landing entirely in one.
func (e *RawEncoder) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if err := e.ensureFrameOpen(); err != nil {
			return written, err
		}

		remaining := e.policy.frameDSizeLimit() - e.dSize
		n := uint32(len(p))
		if n > remaining {
			n = remaining
		}
		chunk := p[:n]

		if _, err := e.engine.encodeWrite(chunk); err != nil {
			return written, err
		}
		e.hasher.Write(chunk)
		e.dSize += uint32(len(chunk))
		written += len(chunk)
		p = p[len(chunk):]

		if e.policy.shouldEndFrame(e.sink.count, e.dSize) {
			if err := e.EndFrame(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// EndFrame force-closes the current frame even if the policy hasn't
// asked for it yet. A no-op if no bytes have been written to the current
// frame.
func (e *RawEncoder) EndFrame() error {
	if e.engine.enc == nil || (e.dSize == 0 && e.sink.count == 0) {
		return nil
	}

	e.state = stateFlushing
	if err := e.engine.endEncodeFrame(); err != nil {
		return err
	}
	// Flush is complete (Close returned) before we read final sizes: this
	// is the ordering the reference implementation's end_frame enforces.
	e.state = stateInFrame

	checksum := uint32(e.hasher.Sum64())
	cSize := e.sink.count
	dSize := e.dSize

	if e.onFrame != nil {
		if err := e.onFrame(cSize, dSize, checksum); err != nil {
			return err
		}
	}

	e.sink.count = 0
	e.dSize = 0
	e.hasher.Reset()
	e.engine.enc = nil // next Write opens a fresh session, rebinding the prefix (if any)
	return nil
}

// Close flushes any in-progress frame. It does not close the underlying
// io.Writer.
func (e *RawEncoder) Close() error {
	return e.EndFrame()
}
