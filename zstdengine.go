package seekable

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdEngine is the streaming compression/decompression session the raw
// encoder and decoder drive frame by frame. original_source/lib/src/
// encode.rs and decode.rs drive zstd_safe's CCtx/DCtx directly through
// explicit ZSTD_e_continue/ZSTD_e_end directives and ZSTD_CCtx_refPrefix;
// klauspost/compress/zstd exposes no such directive-level API, so this
// wrapper reproduces the same frame lifecycle (one zstd frame per
// encoder/decoder session, a fresh session per RawEncoder/RawDecoder
// frame, prefix content rebound at every frame boundary) on top of its
// streaming Encoder/Decoder instead.
type zstdEngine struct {
	eopts []zstd.EOption
	dopts []zstd.DOption

	enc *zstd.Encoder
	dec *zstd.Decoder

	prefix []byte
}

func newZstdEngine(eopts []zstd.EOption, dopts []zstd.DOption) *zstdEngine {
	return &zstdEngine{eopts: eopts, dopts: dopts}
}

// setPrefix records the raw content to be used as a reference window for
// the next frame opened by openEncodeFrame/openDecodeFrame. A zstd
// session drops any bound prefix once it ends a frame, so this must be
// rebound at every frame boundary, exactly as the reference implementation's
// compress_with_prefix/decompress_with_prefix do.
func (z *zstdEngine) setPrefix(p []byte) {
	z.prefix = p
}

// openEncodeFrame (re)initializes the encoder session for a new frame,
// writing compressed output to w. A bound prefix forces a brand new
// Encoder (klauspost's Reset keeps the session's dictionary fixed at
// creation time, it cannot rebind one), otherwise the existing session is
// reused via Reset to avoid reallocating it every frame.
func (z *zstdEngine) openEncodeFrame(w io.Writer) error {
	if z.enc != nil && z.prefix == nil {
		z.enc.Reset(w)
		return nil
	}

	opts := z.eopts
	if z.prefix != nil {
		opts = append(append([]zstd.EOption{}, z.eopts...), zstd.WithEncoderDictRaw(0, z.prefix))
	}
	enc, err := zstd.NewWriter(w, opts...)
	if err != nil {
		return wrapErr(KindZstdCreate, err, "failed to create zstd encoder")
	}
	z.enc = enc
	return nil
}

// encodeWrite feeds uncompressed bytes into the current frame.
func (z *zstdEngine) encodeWrite(p []byte) (int, error) {
	n, err := z.enc.Write(p)
	if err != nil {
		return n, wrapErr(KindZstd, err, "zstd encode failed")
	}
	return n, nil
}

// endEncodeFrame closes out the current zstd frame, flushing its footer.
func (z *zstdEngine) endEncodeFrame() error {
	if err := z.enc.Close(); err != nil {
		return wrapErr(KindZstd, err, "failed to close zstd frame")
	}
	return nil
}

// openDecodeFrame (re)initializes the decoder session for a new frame,
// reading compressed input from r. Mirrors openEncodeFrame: a bound
// prefix forces a fresh Decoder since a dictionary option only takes
// effect at construction time.
func (z *zstdEngine) openDecodeFrame(r io.Reader) error {
	if z.dec != nil && z.prefix == nil {
		return z.dec.Reset(r)
	}

	opts := z.dopts
	if z.prefix != nil {
		opts = append(append([]zstd.DOption{}, z.dopts...), zstd.WithDecoderDictRaw(0, z.prefix))
	}
	if z.dec != nil {
		z.dec.Close()
	}
	dec, err := zstd.NewReader(r, opts...)
	if err != nil {
		return wrapErr(KindZstdCreate, err, "failed to create zstd decoder")
	}
	z.dec = dec
	return nil
}

// decodeRead pulls decompressed bytes out of the current frame. Returns
// io.EOF once the frame ends.
func (z *zstdEngine) decodeRead(dst []byte) (int, error) {
	n, err := z.dec.Read(dst)
	if err != nil && err != io.EOF {
		return n, wrapErr(KindZstd, err, "zstd decode failed")
	}
	return n, err
}

func (z *zstdEngine) close() {
	if z.dec != nil {
		z.dec.Close()
	}
}

// decompressAll drives a one-shot decode of a standalone, prefix-free
// compressed frame, without touching the engine's streaming session
// state. Used for the buffered decoder's random-access path, where each
// frame is fetched and decoded independently, matching the teacher's
// DecodeAll-based reader. Streams written with a rebound prefix
// (diff.go's DiffWindowLog use case) must be read back sequentially
// through RawDecoder instead, since each such frame can only be decoded
// with the same prefix bound, which this path has no way to supply.
func decompressAll(dec *zstd.Decoder, src []byte) ([]byte, error) {
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, wrapErr(KindZstd, err, "failed to decompress frame")
	}
	return out, nil
}
