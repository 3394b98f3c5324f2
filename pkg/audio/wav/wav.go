// Package wav writes PCM audio into a RIFF/WAVE container. The header is
// written up front with zero sizes and patched on Close, so a crash mid-write
// leaves a recoverable data stream.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const headerSize = 44

// Writer appends raw PCM bytes to a WAVE container on an io.WriteSeeker.
// Writer is not safe for concurrent use.
type Writer struct {
	ws         io.WriteSeeker
	sampleRate int
	channels   int
	bitDepth   int
	dataBytes  int64
	closed     bool
}

func NewWriter(ws io.WriteSeeker, sampleRate, channels, bitDepth int) (*Writer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("wav: invalid format %dHz/%dch", sampleRate, channels)
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("wav: unsupported bit depth %d", bitDepth)
	}
	w := &Writer{ws: ws, sampleRate: sampleRate, channels: channels, bitDepth: bitDepth}
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends raw little-endian PCM sample bytes.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("wav: writer is closed")
	}
	n, err := w.ws.Write(p)
	w.dataBytes += int64(n)
	if err != nil {
		return n, fmt.Errorf("wav: write samples: %w", err)
	}
	return n, nil
}

// BytesWritten reports the PCM payload size so far, excluding the header.
func (w *Writer) BytesWritten() int64 {
	return w.dataBytes
}

// Close patches the RIFF and data chunk sizes. It does not close the
// underlying WriteSeeker. Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek header: %w", err)
	}
	if err := w.writeHeader(); err != nil {
		return err
	}
	if _, err := w.ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wav: seek end: %w", err)
	}
	return nil
}

func (w *Writer) writeHeader() error {
	blockAlign := w.channels * w.bitDepth / 8
	byteRate := w.sampleRate * blockAlign

	var hdr [headerSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+w.dataBytes))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(w.bitDepth))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(w.dataBytes))

	if _, err := w.ws.Write(hdr[:]); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	return nil
}

// File is a Writer backed by a file on disk.
type File struct {
	*Writer
	f    *os.File
	Path string
}

func Create(path string, sampleRate, channels, bitDepth int) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create %q: %w", path, err)
	}
	w, err := NewWriter(f, sampleRate, channels, bitDepth)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return &File{Writer: w, f: f, Path: path}, nil
}

// Close finalizes the header and closes the file. Idempotent.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	werr := f.Writer.Close()
	cerr := f.f.Close()
	f.f = nil
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return fmt.Errorf("wav: close %q: %w", f.Path, cerr)
	}
	return nil
}
