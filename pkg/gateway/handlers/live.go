package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alma-voice/alma/pkg/asr"
	"github.com/alma-voice/alma/pkg/gateway/config"
	"github.com/alma-voice/alma/pkg/gateway/live/session"
	"github.com/alma-voice/alma/pkg/gateway/live/sessions"
	"github.com/alma-voice/alma/pkg/gateway/stats"
	"github.com/alma-voice/alma/pkg/gateway/store"
)

// LiveHandler upgrades /live requests into voice sessions.
type LiveHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Engine    asr.Engine // nil disables transcription
	Assistant session.AssistantClient
	Store     *store.Store
	Counters  *stats.Counters
	Sessions  *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		writeJSONError(w, http.StatusForbidden, "origin is not allowed")
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.WSHandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := "s_" + randHex(8)
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", sessionID)

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Engine:    h.Engine,
		Assistant: h.Assistant,
		Store:     h.Store,
		Counters:  h.Counters,
		SessionID: sessionID,
		Config: session.Config{
			SampleRate:          config.SampleRate,
			Channels:            config.Channels,
			BitDepth:            config.BitDepth,
			ExpectedChunkSize:   config.ExpectedChunkSize,
			SystemPrompt:        h.Config.SystemPrompt,
			WakePhrase:          h.Config.WakePhrase,
			StopPhrases:         h.Config.StopPhrases,
			ResetPhrases:        h.Config.ResetPhrases,
			AssistantModel:      h.Config.LLMModel,
			TranscriptionEngine: "vosk",
			DispatchDebounce:    h.Config.DispatchDebounce,
			AckEveryN:           h.Config.AckEveryN,
			StatsInterval:       h.Config.StatsInterval,
			AudioDir:            h.Config.AudioDir,
			ReadLimit:           h.Config.WSReadLimit,
			PingInterval:        h.Config.WSPingInterval,
			WriteTimeout:        h.Config.WSWriteTimeout,
			OutboundQueueSize:   h.Config.OutboundQueueSize,
		},
	})
	if err != nil {
		logger.Error("failed to initialize live session", "error", err)
		return
	}

	h.Counters.ConnectionOpened()
	defer h.Counters.ConnectionClosed()

	unregister := func() {}
	if h.Sessions != nil {
		unregister = h.Sessions.Register(sessionID, sessions.Handle{
			Cancel: s.Cancel,
			Reset:  s.ResetConversation,
			State:  s.Snapshot,
		})
	}
	defer unregister()

	logger.Info("live session connected", "remote", r.RemoteAddr)
	start := time.Now()
	if err := s.Run(); err != nil {
		logger.Warn("live session ended with error", "error", err)
	}
	logger.Info("live session closed", "duration_ms", time.Since(start).Milliseconds())
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
