package session

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/alma-voice/alma/pkg/audio/wav"
)

// recorder owns the optional WAV sink of a session. After a write error
// the sink stays open but drops further frames, so a failing disk does
// not take the audio stream down with it.
type recorder struct {
	dir        string
	sampleRate int
	channels   int
	bitDepth   int

	file    *wav.File
	errored bool
}

func newRecorder(dir string, sampleRate, channels, bitDepth int) *recorder {
	return &recorder{
		dir:        dir,
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
	}
}

func (r *recorder) active() bool {
	return r.file != nil
}

func (r *recorder) start() error {
	if r.file != nil {
		return nil
	}
	name := fmt.Sprintf("rec_%s.wav", uuid.NewString())
	f, err := wav.Create(filepath.Join(r.dir, name), r.sampleRate, r.channels, r.bitDepth)
	if err != nil {
		return fmt.Errorf("open wav sink: %w", err)
	}
	r.file = f
	r.errored = false
	return nil
}

func (r *recorder) write(frame []byte) error {
	if r.file == nil || r.errored {
		return nil
	}
	if _, err := r.file.Write(frame); err != nil {
		r.errored = true
		return fmt.Errorf("write wav sink: %w", err)
	}
	return nil
}

// stop finalizes the sink and returns the file name and payload size.
// It is a no-op when no sink is open.
func (r *recorder) stop() (name string, bytes int64, err error) {
	if r.file == nil {
		return "", 0, nil
	}
	f := r.file
	r.file = nil
	r.errored = false

	name = filepath.Base(f.Path)
	bytes = f.BytesWritten()
	if cerr := f.Close(); cerr != nil {
		return name, bytes, fmt.Errorf("close wav sink: %w", cerr)
	}
	return name, bytes, nil
}
