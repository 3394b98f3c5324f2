package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alma-voice/alma/pkg/gateway/store"
)

const transcriptListLimit = 10

// TranscriptsHandler lists the most recent transcript records.
type TranscriptsHandler struct {
	Store  *store.Store
	Logger *slog.Logger
}

func (h TranscriptsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.List(transcriptListLimit)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("listing transcripts failed", "error", err)
		}
		writeJSONError(w, http.StatusInternalServerError, "could not list transcriptions")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Transcriptions []store.Summary `json:"transcriptions"`
		Count          int             `json:"count"`
	}{Transcriptions: summaries, Count: len(summaries)})
}

// TranscriptHandler serves one full transcript record by id.
type TranscriptHandler struct {
	Store  *store.Store
	Logger *slog.Logger
}

func (h TranscriptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.Store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "transcription not found")
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("loading transcript failed", "id", id, "error", err)
		}
		writeJSONError(w, http.StatusInternalServerError, "could not load transcription")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
