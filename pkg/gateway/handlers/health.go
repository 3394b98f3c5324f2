package handlers

import (
	"net/http"
	"time"

	"github.com/alma-voice/alma/pkg/gateway/config"
)

// TestHandler serves the liveness probe at /test.
type TestHandler struct {
	Config          config.Config
	RecognizerReady bool
}

func (h TestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type features struct {
		Transcription  bool   `json:"transcription"`
		AssistantModel string `json:"assistant_model"`
		WakePhrase     string `json:"wake_phrase"`
	}
	writeJSON(w, http.StatusOK, struct {
		Status    string   `json:"status"`
		Message   string   `json:"message"`
		Timestamp string   `json:"timestamp"`
		Features  features `json:"features"`
	}{
		Status:    "ok",
		Message:   "servidor ALMA funcionando",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Features: features{
			Transcription:  h.RecognizerReady,
			AssistantModel: h.Config.LLMModel,
			WakePhrase:     h.Config.WakePhrase,
		},
	})
}
