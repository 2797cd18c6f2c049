package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteValue(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "10", want: 10},
		{in: "10B", want: 10},
		{in: "10K", want: 10 * 1024},
		{in: "10kib", want: 10 * 1024},
		{in: "4M", want: 4 * 1024 * 1024},
		{in: "4mib", want: 4 * 1024 * 1024},
		{in: "1G", want: 1 * 1024 * 1024 * 1024},
		{in: "1gib", want: 1 * 1024 * 1024 * 1024},
		{in: "1T", want: 1 * 1024 * 1024 * 1024 * 1024},
		{in: "1tib", want: 1 * 1024 * 1024 * 1024 * 1024},
		{in: "2 M", want: 2 * 1024 * 1024},
		{in: "K", wantErr: true},
		{in: "10X", wantErr: true},
		{in: "", wantErr: true},
	} {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := byteValue(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteOffset(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in   string
		want uint64
	}{
		{in: "start", want: 0},
		{in: "Start", want: 0},
		{in: "end", want: ^uint64(0)},
		{in: "END", want: ^uint64(0)},
		{in: "10K", want: 10 * 1024},
	} {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := byteOffset(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHumanizeBytes(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in   uint64
		want string
	}{
		{in: 0, want: "0B"},
		{in: 1023, want: "1023B"},
		{in: 1024, want: "1.0KiB"},
		{in: 1536, want: "1.5KiB"},
		{in: 1 << 20, want: "1.0MiB"},
		{in: 1 << 30, want: "1.0GiB"},
	} {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, humanizeBytes(tt.in))
		})
	}
}
