package seekable

import "math/bits"

// DiffWindowLog returns a zstd window-log suitable for compressing a new
// version of a buffer against an old one of length oldLen, bound as a
// prefix via WithEncoderPrefix: ceil(log2(oldLen + 1024)), enabling
// long-distance matching against content further back than the default
// window would reach.
//
// Grounded on original_source/lib/src/lib.rs's seekable_diff_cycle test,
// which computes the window log the same way before compressing a new
// buffer against an old one as a prefix.
func DiffWindowLog(oldLen int) int {
	if oldLen < 0 {
		oldLen = 0
	}
	n := uint64(oldLen) + 1024
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}
