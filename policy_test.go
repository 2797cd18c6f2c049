package seekable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressedPolicy(t *testing.T) {
	t.Parallel()

	p := Compressed(100)
	assert.False(t, p.shouldEndFrame(99, 10))
	assert.True(t, p.shouldEndFrame(100, 10))
	assert.True(t, p.shouldEndFrame(101, 10))
	// decompressed size hitting the hard cap ends the frame regardless of
	// how far the compressed threshold is.
	assert.True(t, p.shouldEndFrame(1, maxFrameDSize))
}

func TestUncompressedPolicy(t *testing.T) {
	t.Parallel()

	p := Uncompressed(100)
	assert.False(t, p.shouldEndFrame(0, 99))
	assert.True(t, p.shouldEndFrame(0, 100))
	assert.True(t, p.shouldEndFrame(0, 200))
}

func TestUncompressedPolicyRejectsOversizedLimit(t *testing.T) {
	t.Parallel()

	err := Uncompressed(maxFrameDSize + 1000).(*uncompressedPolicy).validate()
	require.Error(t, err)
	var fmtErr *Error
	require.ErrorAs(t, err, &fmtErr)
	assert.Equal(t, KindFrameSizeTooLarge, fmtErr.Kind)

	assert.NoError(t, Uncompressed(maxFrameDSize).(*uncompressedPolicy).validate())
}

func TestDefaultFrameSizePolicy(t *testing.T) {
	t.Parallel()

	p := defaultFrameSizePolicy().(*uncompressedPolicy)
	assert.EqualValues(t, defaultUncompressedFrameLimit, p.limit)
}
