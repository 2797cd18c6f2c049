package seekable

import (
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/zeekstd-go/seekable/env"
)

// EncoderOption configures NewWriter/NewByteEncoder, following the teacher package's
// functional-options convention (WOption/ROption).
type EncoderOption func(*encoderOptions) error

type encoderOptions struct {
	logger    *zap.Logger
	zstdEOpts []zstd.EOption
	policy    FrameSizePolicy
	checksum  bool
	sink      env.WSink
	prefix    []byte
}

func (o *encoderOptions) setDefault() {
	*o = encoderOptions{
		logger:   zap.NewNop(),
		policy:   defaultFrameSizePolicy(),
		checksum: true,
	}
}

// WithEncoderZSTDOptions forwards options to the underlying zstd encoder sessions.
func WithEncoderZSTDOptions(opts ...zstd.EOption) EncoderOption {
	return func(o *encoderOptions) error { o.zstdEOpts = opts; return nil }
}

// WithEncoderLogger overrides the encoder's structured logger.
func WithEncoderLogger(l *zap.Logger) EncoderOption {
	return func(o *encoderOptions) error { o.logger = l; return nil }
}

// WithFrameSizePolicy overrides the default Uncompressed(2 MiB) policy.
func WithFrameSizePolicy(p FrameSizePolicy) EncoderOption {
	return func(o *encoderOptions) error { o.policy = p; return nil }
}

// WithChecksum controls whether the seek table's Checksum_Flag is set and
// per-frame XXH64 checksums are recorded. Defaults to true.
func WithChecksum(enabled bool) EncoderOption {
	return func(o *encoderOptions) error { o.checksum = enabled; return nil }
}

// WithEncoderSink injects a custom frame/seek-table sink in place of a
// plain io.Writer, e.g. to route frames through content-defined chunking.
func WithEncoderSink(sink env.WSink) EncoderOption {
	return func(o *encoderOptions) error { o.sink = sink; return nil }
}

// WithEncoderPrefix binds raw content as a reference window for every
// frame, enabling small diffs against previously known data (see
// DiffWindowLog).
func WithEncoderPrefix(prefix []byte) EncoderOption {
	return func(o *encoderOptions) error { o.prefix = prefix; return nil }
}

// DecoderOption configures NewDecoder/NewReader.
type DecoderOption func(*decoderOptions) error

type decoderOptions struct {
	logger         *zap.Logger
	zstdDOpts      []zstd.DOption
	source         env.Source
	format         Format
	verifyChecksum bool
}

func (o *decoderOptions) setDefault() {
	*o = decoderOptions{
		logger: zap.NewNop(),
		format: FormatFoot,
	}
}

// WithDecoderZSTDOptions forwards options to the underlying zstd decoder sessions.
func WithDecoderZSTDOptions(opts ...zstd.DOption) DecoderOption {
	return func(o *decoderOptions) error { o.zstdDOpts = opts; return nil }
}

// WithDecoderLogger overrides the decoder's structured logger.
func WithDecoderLogger(l *zap.Logger) DecoderOption {
	return func(o *decoderOptions) error { o.logger = l; return nil }
}

// WithDecoderSource injects a custom Source in place of the default
// io.ReadSeeker-backed one.
func WithDecoderSource(source env.Source) DecoderOption {
	return func(o *decoderOptions) error { o.source = source; return nil }
}

// WithSeekTableFormat selects which integrity-field layout to expect
// (FormatFoot is what every known producer writes; FormatHead is
// decode-only, see codec.go).
func WithSeekTableFormat(f Format) DecoderOption {
	return func(o *decoderOptions) error { o.format = f; return nil }
}

// WithChecksumVerification opts into comparing each decoded frame's
// digest against its stored checksum. Off by default: resolves the
// format's Open Question the same way both the reference implementation
// and the teacher behave by default (checksums are written but not
// verified), while still making verification available on request.
func WithChecksumVerification(v bool) DecoderOption {
	return func(o *decoderOptions) error { o.verifyChecksum = v; return nil }
}
