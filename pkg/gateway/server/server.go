// Package server wires the HTTP surface of the gateway.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alma-voice/alma/pkg/asr"
	"github.com/alma-voice/alma/pkg/assistant"
	"github.com/alma-voice/alma/pkg/gateway/config"
	"github.com/alma-voice/alma/pkg/gateway/handlers"
	"github.com/alma-voice/alma/pkg/gateway/live/sessions"
	"github.com/alma-voice/alma/pkg/gateway/mw"
	"github.com/alma-voice/alma/pkg/gateway/stats"
	"github.com/alma-voice/alma/pkg/gateway/store"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	engine    asr.Engine
	assistant *assistant.Client
	store     *store.Store
	counters  *stats.Counters
	sessions  *sessions.Tracker
}

// New builds the server and its collaborators. engine may be nil when no
// recognizer model is configured; the live surface then runs without
// transcription.
func New(cfg config.Config, logger *slog.Logger, engine asr.Engine) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	st, err := store.New(cfg.TranscriptDir)
	if err != nil {
		return nil, fmt.Errorf("transcript store: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		engine: engine,
		assistant: &assistant.Client{
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			TopP:        cfg.LLMTopP,
			HTTPClient:  httpClient,
		},
		store:    st,
		counters: stats.New(),
		sessions: sessions.NewTracker(),
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	recognizerReady := s.engine != nil

	s.mux.Handle("GET /test", handlers.TestHandler{
		Config:          s.cfg,
		RecognizerReady: recognizerReady,
	})
	s.mux.Handle("GET /stats", handlers.StatsHandler{
		Counters:        s.counters,
		Sessions:        s.sessions,
		RecognizerReady: recognizerReady,
	})
	s.mux.Handle("GET /transcriptions", handlers.TranscriptsHandler{
		Store:  s.store,
		Logger: s.logger,
	})
	s.mux.Handle("GET /transcription/{id}", handlers.TranscriptHandler{
		Store:  s.store,
		Logger: s.logger,
	})
	s.mux.Handle("GET /conversations/active", handlers.ActiveConversationsHandler{
		Sessions: s.sessions,
	})
	s.mux.Handle("POST /conversations/reset-all", handlers.ResetAllHandler{
		Sessions: s.sessions,
		Logger:   s.logger,
	})
	s.mux.Handle("GET /live", handlers.LiveHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Engine:    s.engine,
		Assistant: s.assistant,
		Store:     s.store,
		Counters:  s.counters,
		Sessions:  s.sessions,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Sessions exposes the live session tracker for shutdown coordination.
func (s *Server) Sessions() *sessions.Tracker {
	return s.sessions
}

// Assistant exposes the shared assistant client for startup probes.
func (s *Server) Assistant() *assistant.Client {
	return s.assistant
}
