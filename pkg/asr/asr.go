// Package asr defines the streaming speech recognition interface the live
// session pipeline consumes. Implementations wrap an external engine; the
// pipeline never depends on a concrete one.
package asr

// FinalResult is a completed-utterance hypothesis. Confidence is whatever the
// engine reports, passed through unmodified; many engines report zero by
// convention.
type FinalResult struct {
	Text       string
	Confidence float64
}

// Recognizer is a per-session streaming recognizer. It is order-sensitive and
// must never be shared across sessions. Close releases engine resources and
// must be called exactly once.
type Recognizer interface {
	// Accept feeds one frame of little-endian 16-bit PCM mono audio.
	// It reports true when an utterance boundary was reached, at which
	// point Result returns the final hypothesis for that utterance.
	Accept(frame []byte) (bool, error)

	// Result returns the final hypothesis after Accept reported a boundary.
	Result() (FinalResult, error)

	// Partial returns the in-progress hypothesis for the current utterance.
	// Successive calls supersede earlier ones.
	Partial() (string, error)

	// FinalResult forces emission of whatever has been recognized so far.
	// Used on explicit client request and at session teardown.
	FinalResult() (FinalResult, error)

	Close() error
}

// Engine owns the loaded model and mints per-session recognizers.
type Engine interface {
	NewRecognizer(sampleRate int) (Recognizer, error)
	Close() error
}
