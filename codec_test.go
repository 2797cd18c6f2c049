package seekable

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeekstd-go/seekable/env"
)

func TestCreateSkippableFrame(t *testing.T) {
	t.Parallel()

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()

	for i, tab := range []struct {
		tag         uint32
		input       []byte
		expected    []byte
		expectedErr string
	}{
		{tag: 0x00, input: []byte{}, expected: nil},
		{tag: 0x01, input: []byte{'T'}, expected: []byte{0x51, 0x2a, 0x4d, 0x18, 0x01, 0x00, 0x00, 0x00, 'T'}},
		{tag: 0xff, input: []byte{'T'}, expectedErr: "requested tag (255) > 0xf"},
	} {
		tab := tab
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Parallel()
			got, err := createSkippableFrame(tab.tag, tab.input)
			if tab.expectedErr != "" {
				require.EqualError(t, err, tab.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tab.expected, got)
			if len(got) > 0 {
				decoded, err := dec.DecodeAll(got, nil)
				require.NoError(t, err)
				assert.Empty(t, decoded)
			}
		})
	}
}

func TestMarshalParseSeekTable(t *testing.T) {
	t.Parallel()

	for _, withChecksum := range []bool{true, false} {
		withChecksum := withChecksum
		t.Run(fmt.Sprintf("checksum=%v", withChecksum), func(t *testing.T) {
			t.Parallel()

			table := NewSeekTable(withChecksum)
			require.NoError(t, table.Add(10, 100, 0xdeadbeef))
			require.NoError(t, table.Add(20, 200, 0xcafef00d))
			require.NoError(t, table.Add(5, 0, 0))

			buf, err := MarshalSeekTable(table, FormatFoot)
			require.NoError(t, err)

			parsed, err := ParseSeekTable(env.NewBytesSource(buf), FormatFoot)
			require.NoError(t, err)

			assert.Equal(t, table.NumFrames(), parsed.NumFrames())
			assert.Equal(t, table.Size(), parsed.Size())
			assert.Equal(t, table.HasChecksums(), parsed.HasChecksums())

			for id := int64(0); id < table.NumFrames(); id++ {
				want := table.FrameAtID(id)
				got := parsed.FrameAtID(id)
				require.NotNil(t, got)
				assert.Equal(t, want.CompOffset, got.CompOffset)
				assert.Equal(t, want.DecompOffset, got.DecompOffset)
				assert.Equal(t, want.CompSize, got.CompSize)
				assert.Equal(t, want.DecompSize, got.DecompSize)
				if withChecksum {
					assert.Equal(t, want.Checksum, got.Checksum)
				}
			}
		})
	}
}

func TestParseSeekTableRejectsBadMagic(t *testing.T) {
	t.Parallel()

	table := NewSeekTable(true)
	require.NoError(t, table.Add(1, 1, 1))
	buf, err := MarshalSeekTable(table, FormatFoot)
	require.NoError(t, err)

	corrupt := append([]byte(nil), buf...)
	corrupt[len(corrupt)-1] ^= 0xff // flip a byte in the magic number

	_, err = ParseSeekTable(env.NewBytesSource(corrupt), FormatFoot)
	require.Error(t, err)
	var fmtErr *Error
	require.ErrorAs(t, err, &fmtErr)
	assert.Equal(t, KindCorrupt, fmtErr.Kind)
}

func tableWithFrames(t *testing.T, n int) *SeekTable {
	t.Helper()
	table := NewSeekTable(true)
	for i := 0; i < n; i++ {
		require.NoError(t, table.Add(uint32(i*7+1), uint32(i*13+1), uint32(i*31)))
	}
	return table
}

// TestSeekTableSerializerIdempotence covers testable property #3: after
// Reset, a fresh full-buffer WriteInto reproduces exactly the same bytes.
func TestSeekTableSerializerIdempotence(t *testing.T) {
	t.Parallel()

	table := tableWithFrames(t, 50)
	ser, err := newSeekTableSerializer(table, FormatFoot)
	require.NoError(t, err)

	first := make([]byte, ser.EncodedLen())
	n, err := ser.WriteInto(first)
	require.NoError(t, err)
	assert.Equal(t, len(first), n)

	n, err = ser.WriteInto(first)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ser.Reset()
	second := make([]byte, ser.EncodedLen())
	n, err = ser.WriteInto(second)
	require.NoError(t, err)
	assert.Equal(t, len(second), n)

	assert.Equal(t, first, second)
}

// TestSeekTableSerializerChunkedWriteInvariance covers testable property
// #5: the concatenation of WriteInto outputs is identical regardless of
// how the destination buffer is segmented, down to one byte at a time.
func TestSeekTableSerializerChunkedWriteInvariance(t *testing.T) {
	t.Parallel()

	table := tableWithFrames(t, 37)
	ser, err := newSeekTableSerializer(table, FormatFoot)
	require.NoError(t, err)
	whole := make([]byte, ser.EncodedLen())
	n, err := ser.WriteInto(whole)
	require.NoError(t, err)
	require.Equal(t, len(whole), n)

	rng := rand.New(rand.NewSource(1))
	ser.Reset()
	var chunked bytes.Buffer
	for {
		buf := make([]byte, 1+rng.Intn(5))
		n, err := ser.WriteInto(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		chunked.Write(buf[:n])
	}

	assert.Equal(t, whole, chunked.Bytes())
}

// TestSeekTableSerializerBufferTooSmall exercises KindBufferTooSmall: an
// empty destination buffer can't make any progress while bytes remain.
func TestSeekTableSerializerBufferTooSmall(t *testing.T) {
	t.Parallel()

	table := tableWithFrames(t, 1)
	ser, err := newSeekTableSerializer(table, FormatFoot)
	require.NoError(t, err)

	_, err = ser.WriteInto(nil)
	require.Error(t, err)
	var fmtErr *Error
	require.ErrorAs(t, err, &fmtErr)
	assert.Equal(t, KindBufferTooSmall, fmtErr.Kind)
}
