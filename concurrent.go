package seekable

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// RangeSource opens an independent, seekable view of the compressed
// stream for concurrent use. Each call must return a reader positioned at
// the start of the stream; ConcurrentRangeDecompress seeks it internally.
type RangeSource func() (io.ReadSeeker, error)

// ConcurrentRangeDecompress decompresses frames [0, table.NumFrames())
// split into numWorkers disjoint, contiguous frame ranges, each driven by
// its own RawDecoder over its own source handle, and returns their
// results in frame order. It exists because decompression — unlike
// encoding a single stream, which this package deliberately does not
// parallelize — is inherently parallel across frames: each frame is an
// independent zstd frame with its own offset in the seek table.
//
// Grounded on the teacher's pkg/writer.go WriteMany producer/consumer
// pattern (same errgroup idiom), repurposed from the encode side it was
// built for onto the decode side where the format actually licenses
// concurrency.
func ConcurrentRangeDecompress(ctx context.Context, table *SeekTable, open RangeSource, numWorkers int, dopts ...zstd.DOption) ([][]byte, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	n := table.NumFrames()
	if n == 0 {
		return nil, nil
	}
	if int64(numWorkers) > n {
		numWorkers = int(n)
	}

	results := make([][]byte, n)
	framesPerWorker := (n + int64(numWorkers) - 1) / int64(numWorkers)

	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < numWorkers; w++ {
		start := int64(w) * framesPerWorker
		end := start + framesPerWorker
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			rs, err := open()
			if err != nil {
				return fmt.Errorf("failed to open range source: %w", err)
			}
			defer func() {
				if c, ok := rs.(io.Closer); ok {
					_ = c.Close()
				}
			}()

			startEntry := table.FrameAtID(start)
			if _, err := rs.Seek(int64(startEntry.CompOffset), io.SeekStart); err != nil {
				return fmt.Errorf("failed to seek to frame %d: %w", start, err)
			}

			rd := NewRawDecoder(rs, table, start, end, dopts...)
			defer rd.Close()

			for i := start; i < end; i++ {
				entry := table.FrameAtID(i)
				buf := make([]byte, entry.DecompSize)
				if _, err := io.ReadFull(rd, buf); err != nil {
					return fmt.Errorf("failed to decompress frame %d: %w", i, err)
				}
				results[i] = buf
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
