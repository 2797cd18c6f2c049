package seekable

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffWindowLog(t *testing.T) {
	t.Parallel()

	// Negative lengths clamp to 0, giving ceil(log2(1024)) as well.
	assert.Equal(t, 10, DiffWindowLog(-100))
	assert.Equal(t, 10, DiffWindowLog(0)) // ceil(log2(1024)) == 10
	assert.Equal(t, 17, DiffWindowLog(100_000))
}

// TestDiffCycle exercises the prefix-diff helper end to end: compressing a
// modified buffer against the original as a bound reference window, then
// decoding it back with the same prefix bound on the decoder side. Bound
// prefixes are consumed by a single zstd session, so round-tripping them
// goes through RawEncoder/RawDecoder directly rather than the buffered
// Writer/Reader, whose random-access decode path has no way to supply the
// reference window back to the decoder.
func TestDiffCycle(t *testing.T) {
	t.Parallel()

	old := randomBlock(t, 64_000)
	modified := append(append([]byte(nil), old...), randomBlock(t, 500)...)

	windowLog := DiffWindowLog(len(old))
	require.Greater(t, windowLog, 0)

	var out bytes.Buffer
	var entry *frameRecorder
	enc, err := NewRawEncoder(&out, Uncompressed(maxFrameDSize), func(cSize, dSize, checksum uint32) error {
		entry = &frameRecorder{cSize: cSize, dSize: dSize}
		return nil
	}, zstd.WithWindowSize(1<<windowLog))
	require.NoError(t, err)
	enc.SetPrefix(old)

	_, err = enc.Write(modified)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NotNil(t, entry)

	table := NewSeekTable(false)
	require.NoError(t, table.Add(entry.cSize, entry.dSize, 0))

	dec := NewRawDecoder(bytes.NewReader(out.Bytes()), table, 0, 1)
	dec.SetPrefix(old)

	got := make([]byte, len(modified))
	_, err = io.ReadFull(dec, got)
	require.NoError(t, err)
	assert.Equal(t, modified, got)
}

type frameRecorder struct {
	cSize, dSize uint32
}
