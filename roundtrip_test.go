package seekable

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBlock(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestWriterReaderRoundtrip(t *testing.T) {
	t.Parallel()

	blocks := [][]byte{
		randomBlock(t, 50_000),
		randomBlock(t, 70_000),
		randomBlock(t, 1_000),
	}
	var want bytes.Buffer
	for _, b := range blocks {
		want.Write(b)
	}

	var out bytes.Buffer
	w, err := NewWriter(&out, WithFrameSizePolicy(Uncompressed(40_000)))
	require.NoError(t, err)
	for _, b := range blocks {
		_, err := w.Write(b)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	require.Greater(t, w.SeekTable().NumFrames(), int64(1))

	r, err := NewReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	defer r.Close()

	assert.EqualValues(t, want.Len(), r.Size())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)
}

func TestReaderSeekAndReadAt(t *testing.T) {
	t.Parallel()

	data := randomBlock(t, 200_000)

	var out bytes.Buffer
	w, err := NewWriter(&out, WithFrameSizePolicy(Uncompressed(30_000)))
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	defer r.Close()

	for _, tt := range []struct {
		off int64
		n   int
	}{
		{off: 0, n: 10},
		{off: 29_995, n: 20},
		{off: 150_000, n: 5_000},
		{off: 199_990, n: 10},
	} {
		buf := make([]byte, tt.n)
		n, err := r.ReadAt(buf, tt.off)
		require.NoError(t, err)
		assert.Equal(t, tt.n, n)
		assert.Equal(t, data[tt.off:tt.off+int64(tt.n)], buf)
	}

	pos, err := r.Seek(100_000, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 100_000, pos)

	buf := make([]byte, 100)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, data[100_000:100_000+n], buf[:n])
}

func TestReaderChecksumVerification(t *testing.T) {
	t.Parallel()

	data := randomBlock(t, 10_000)

	var out bytes.Buffer
	w, err := NewWriter(&out, WithChecksum(true))
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Flip a byte of frame 0's stored checksum, the last field before the
	// seek table's integrity trailer, so the frame still decodes.
	corrupted := append([]byte(nil), out.Bytes()...)
	corrupted[len(corrupted)-seekTableIntegritySize-1] ^= 0xff

	r, err := NewReader(bytes.NewReader(corrupted), WithChecksumVerification(true))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.Error(t, err)
	var fmtErr *Error
	require.ErrorAs(t, err, &fmtErr)
	assert.Equal(t, KindChecksumMismatch, fmtErr.Kind)
}

func TestReaderVerificationWithoutStoredChecksumsFails(t *testing.T) {
	t.Parallel()

	data := randomBlock(t, 5_000)

	var out bytes.Buffer
	w, err := NewWriter(&out, WithChecksum(false))
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(out.Bytes()), WithChecksumVerification(true))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingChecksum)
}

func TestByteEncoderDecoderRoundtrip(t *testing.T) {
	t.Parallel()

	data := randomBlock(t, 20_000)

	enc, err := NewByteEncoder(WithFrameSizePolicy(Uncompressed(8_000)))
	require.NoError(t, err)

	var stream bytes.Buffer
	compressed, err := enc.Encode(data)
	require.NoError(t, err)
	stream.Write(compressed)

	tail, err := enc.EndStream()
	require.NoError(t, err)
	stream.Write(tail)

	r, err := NewReader(bytes.NewReader(stream.Bytes()))
	require.NoError(t, err)
	defer r.Close()

	assert.EqualValues(t, len(data), r.Size())
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
