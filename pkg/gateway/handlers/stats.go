package handlers

import (
	"net/http"
	"runtime"

	"github.com/alma-voice/alma/pkg/gateway/live/sessions"
	"github.com/alma-voice/alma/pkg/gateway/stats"
)

// StatsHandler serves process-wide counters at /stats.
type StatsHandler struct {
	Counters        *stats.Counters
	Sessions        *sessions.Tracker
	RecognizerReady bool
}

func (h StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	activeConversations := 0
	for _, snap := range h.Sessions.Snapshots() {
		if snap.Active {
			activeConversations++
		}
	}

	type memory struct {
		AllocBytes uint64 `json:"alloc_bytes"`
		SysBytes   uint64 `json:"sys_bytes"`
		NumGC      uint32 `json:"num_gc"`
	}
	writeJSON(w, http.StatusOK, struct {
		UptimeSeconds       int64  `json:"uptime_seconds"`
		TotalConnections    int64  `json:"total_connections"`
		ActiveConnections   int64  `json:"active_connections"`
		TotalChunks         int64  `json:"total_chunks"`
		TotalTranscriptions int64  `json:"total_transcriptions"`
		ActiveSessions      int    `json:"active_sessions"`
		ActiveConversations int    `json:"active_conversations"`
		RecognizerReady     bool   `json:"recognizer_ready"`
		Goroutines          int    `json:"goroutines"`
		Memory              memory `json:"memory"`
	}{
		UptimeSeconds:       int64(h.Counters.Uptime().Seconds()),
		TotalConnections:    h.Counters.TotalConnections(),
		ActiveConnections:   h.Counters.ActiveConnections(),
		TotalChunks:         h.Counters.TotalChunks(),
		TotalTranscriptions: h.Counters.TotalTranscriptions(),
		ActiveSessions:      h.Sessions.Count(),
		ActiveConversations: activeConversations,
		RecognizerReady:     h.RecognizerReady,
		Goroutines:          runtime.NumGoroutine(),
		Memory: memory{
			AllocBytes: mem.Alloc,
			SysBytes:   mem.Sys,
			NumGC:      mem.NumGC,
		},
	})
}
