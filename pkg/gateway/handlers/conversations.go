package handlers

import (
	"log/slog"
	"net/http"

	"github.com/alma-voice/alma/pkg/gateway/live/sessions"
)

// ActiveConversationsHandler lists the sessions whose conversation is
// currently active.
type ActiveConversationsHandler struct {
	Sessions *sessions.Tracker
}

func (h ActiveConversationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	active := make([]sessions.Snapshot, 0)
	for _, snap := range h.Sessions.Snapshots() {
		if snap.Active {
			active = append(active, snap)
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Conversations []sessions.Snapshot `json:"conversations"`
		Count         int                 `json:"count"`
	}{Conversations: active, Count: len(active)})
}

// ResetAllHandler applies the administrative reset to every live session.
type ResetAllHandler struct {
	Sessions *sessions.Tracker
	Logger   *slog.Logger
}

func (h ResetAllHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reset := h.Sessions.ResetAll()
	if h.Logger != nil {
		h.Logger.Info("reset all conversations", "reset", reset)
	}
	writeJSON(w, http.StatusOK, struct {
		Reset   int    `json:"reset"`
		Message string `json:"message"`
	}{Reset: reset, Message: "conversaciones reiniciadas"})
}
