// Package vosk adapts the Vosk offline speech recognition engine to the
// asr interfaces. The engine works on 16-bit little-endian mono PCM and
// produces JSON result payloads which this package decodes.
package vosk

import (
	"encoding/json"
	"fmt"

	voskapi "github.com/alphacep/vosk-api/go"

	"github.com/alma-voice/alma/pkg/asr"
)

// Engine wraps a loaded Vosk model. One Engine serves the whole process;
// recognizers minted from it are per-session.
type Engine struct {
	model *voskapi.VoskModel
}

// Open loads the model from disk. The model directory layout is the standard
// Vosk distribution (am/, conf/, graph/, ...).
func Open(modelPath string) (*Engine, error) {
	model, err := voskapi.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model %q: %w", modelPath, err)
	}
	return &Engine{model: model}, nil
}

func (e *Engine) NewRecognizer(sampleRate int) (asr.Recognizer, error) {
	rec, err := voskapi.NewRecognizer(e.model, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("new vosk recognizer: %w", err)
	}
	rec.SetWords(1)
	return &recognizer{rec: rec}, nil
}

func (e *Engine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

type recognizer struct {
	rec *voskapi.VoskRecognizer
}

func (r *recognizer) Accept(frame []byte) (bool, error) {
	if r.rec == nil {
		return false, fmt.Errorf("recognizer is closed")
	}
	return r.rec.AcceptWaveform(frame) != 0, nil
}

func (r *recognizer) Result() (asr.FinalResult, error) {
	if r.rec == nil {
		return asr.FinalResult{}, fmt.Errorf("recognizer is closed")
	}
	return decodeFinal([]byte(r.rec.Result()))
}

func (r *recognizer) Partial() (string, error) {
	if r.rec == nil {
		return "", fmt.Errorf("recognizer is closed")
	}
	var payload struct {
		Partial string `json:"partial"`
	}
	if err := json.Unmarshal([]byte(r.rec.PartialResult()), &payload); err != nil {
		return "", fmt.Errorf("decode partial result: %w", err)
	}
	return payload.Partial, nil
}

func (r *recognizer) FinalResult() (asr.FinalResult, error) {
	if r.rec == nil {
		return asr.FinalResult{}, fmt.Errorf("recognizer is closed")
	}
	return decodeFinal([]byte(r.rec.FinalResult()))
}

func (r *recognizer) Close() error {
	if r.rec != nil {
		r.rec.Free()
		r.rec = nil
	}
	return nil
}

func decodeFinal(raw []byte) (asr.FinalResult, error) {
	// Vosk reports text plus an optional word list; a top-level confidence
	// is only present with some configurations. Whatever is there is passed
	// through as-is.
	var payload struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return asr.FinalResult{}, fmt.Errorf("decode final result: %w", err)
	}
	return asr.FinalResult{Text: payload.Text, Confidence: payload.Confidence}, nil
}
