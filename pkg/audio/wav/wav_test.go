package wav

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateWritesHeaderAndPatchesSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := Create(path, 16000, 1, 16)
	require.NoError(t, err)

	frames := [][]byte{
		make([]byte, 8192),
		make([]byte, 4096),
		make([]byte, 10),
	}
	var want int64
	for i, frame := range frames {
		for j := range frame {
			frame[j] = byte(i + j)
		}
		n, err := f.Write(frame)
		require.NoError(t, err)
		require.Equal(t, len(frame), n)
		want += int64(len(frame))
	}
	require.Equal(t, want, f.BytesWritten())
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, headerSize+int(want))

	require.Equal(t, "RIFF", string(raw[0:4]))
	require.Equal(t, "WAVE", string(raw[8:12]))
	require.Equal(t, uint32(36+want), binary.LittleEndian.Uint32(raw[4:8]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[20:22]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[22:24]))
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(raw[24:28]))
	require.Equal(t, uint32(32000), binary.LittleEndian.Uint32(raw[28:32]))
	require.Equal(t, uint16(16), binary.LittleEndian.Uint16(raw[34:36]))
	require.Equal(t, "data", string(raw[36:40]))
	require.Equal(t, uint32(want), binary.LittleEndian.Uint32(raw[40:44]))

	// Payload preserved in order.
	off := headerSize
	for i, frame := range frames {
		require.Equal(t, frame, raw[off:off+len(frame)], "frame %d", i)
		off += len(frame)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := Create(path, 16000, 1, 16)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestWriteAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := Create(path, 16000, 1, 16)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = f.Write([]byte{1, 2})
	require.Error(t, err)
}

func TestNewWriterRejectsBadFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = NewWriter(f, 0, 1, 16)
	require.Error(t, err)
	_, err = NewWriter(f, 16000, 1, 12)
	require.Error(t, err)
}
