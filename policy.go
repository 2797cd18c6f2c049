package seekable

// FrameSizePolicy decides when the raw encoder should close the current
// frame and start a new one. Grounded on original_source/lib/src/encode.rs
// (FrameSizePolicy::Compressed / FrameSizePolicy::Uncompressed).
type FrameSizePolicy interface {
	// shouldEndFrame reports whether the frame currently being written
	// should be closed, given its compressed and decompressed byte counts
	// so far.
	shouldEndFrame(cSize, dSize uint32) bool

	// frameDSizeLimit bounds how many decompressed bytes a single frame
	// may ever hold under this policy, regardless of how close the
	// compressed-size threshold is. RawEncoder.Write uses this to chunk a
	// single large input across several frames instead of compressing it
	// all into one (original_source/lib/src/encode.rs's
	// remaining_frame_size()).
	frameDSizeLimit() uint32

	// validate reports whether the policy's configured limits are
	// representable at all, independent of any data written through it.
	validate() error
}

type compressedPolicy struct {
	threshold uint32
}

// Compressed returns a policy that closes the current frame once its
// compressed size reaches threshold bytes, or its decompressed size
// reaches maxFrameDSize, whichever comes first. A threshold above
// maxFrameDSize is rejected by validate (via NewRawEncoder/NewWriter).
func Compressed(threshold uint32) FrameSizePolicy {
	return &compressedPolicy{threshold: threshold}
}

func (p *compressedPolicy) shouldEndFrame(cSize, dSize uint32) bool {
	return cSize >= p.threshold || dSize >= maxFrameDSize
}

func (p *compressedPolicy) frameDSizeLimit() uint32 {
	// Compressed size can't be known before the bytes are fed to the zstd
	// engine, so the only pre-compression bound available is the format's
	// hard cap on a frame's decompressed size.
	return maxFrameDSize
}

func (p *compressedPolicy) validate() error {
	if p.threshold > maxFrameDSize {
		return newErr(KindFrameSizeTooLarge, "compressed frame threshold %d exceeds %d", p.threshold, maxFrameDSize)
	}
	return nil
}

type uncompressedPolicy struct {
	limit uint32
}

// Uncompressed returns a policy that closes the current frame once its
// decompressed size reaches limit. Construction itself never fails; call
// validate (via NewRawEncoder/NewWriter) to reject a limit that exceeds
// maxFrameDSize.
func Uncompressed(limit uint32) FrameSizePolicy {
	return &uncompressedPolicy{limit: limit}
}

func (p *uncompressedPolicy) shouldEndFrame(_, dSize uint32) bool {
	return dSize >= p.limit
}

func (p *uncompressedPolicy) frameDSizeLimit() uint32 {
	return p.limit
}

func (p *uncompressedPolicy) validate() error {
	if p.limit > maxFrameDSize {
		return newErr(KindFrameSizeTooLarge, "uncompressed frame limit %d exceeds %d", p.limit, maxFrameDSize)
	}
	return nil
}

// defaultFrameSizePolicy is used when no policy is supplied to the
// buffered encoder: Uncompressed(2 MiB).
func defaultFrameSizePolicy() FrameSizePolicy {
	return Uncompressed(defaultUncompressedFrameLimit)
}
