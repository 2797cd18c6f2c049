package seekable

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentRangeDecompress(t *testing.T) {
	t.Parallel()

	blocks := make([][]byte, 6)
	for i := range blocks {
		blocks[i] = randomBlock(t, 20_000)
	}

	var out bytes.Buffer
	w, err := NewWriter(&out, WithFrameSizePolicy(Uncompressed(15_000)))
	require.NoError(t, err)
	for _, b := range blocks {
		_, err := w.Write(b)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	table := r.table
	require.NoError(t, r.Close())

	archive := out.Bytes()
	open := func() (io.ReadSeeker, error) {
		return bytes.NewReader(archive), nil
	}

	results, err := ConcurrentRangeDecompress(context.Background(), table, open, 3)
	require.NoError(t, err)
	require.Len(t, results, int(table.NumFrames()))

	var got bytes.Buffer
	for _, r := range results {
		got.Write(r)
	}

	var want bytes.Buffer
	for _, b := range blocks {
		want.Write(b)
	}
	assert.Equal(t, want.Bytes(), got.Bytes())
}

func TestConcurrentRangeDecompressEmptyTable(t *testing.T) {
	t.Parallel()

	table := NewSeekTable(false)
	open := func() (io.ReadSeeker, error) {
		return bytes.NewReader(nil), nil
	}
	results, err := ConcurrentRangeDecompress(context.Background(), table, open, 4)
	require.NoError(t, err)
	assert.Nil(t, results)
}
