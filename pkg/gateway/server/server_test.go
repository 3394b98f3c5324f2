package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alma-voice/alma/pkg/gateway/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		LLMBaseURL:    "http://localhost:11434",
		LLMModel:      "test-model",
		LLMMaxTokens:  128,
		WakePhrase:    "hola alma",
		TranscriptDir: t.TempDir(),
		AudioDir:      t.TempDir(),
	}
	s, err := New(cfg, slog.Default(), nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/test")
	if err != nil {
		t.Fatalf("get /test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/test status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
	var body map[string]any
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	features := body["features"].(map[string]any)
	if features["transcription"] != false {
		t.Fatalf("transcription should be off without an engine: %v", features)
	}

	resp, err = http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("get /stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/stats status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/transcriptions")
	if err != nil {
		t.Fatalf("get /transcriptions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/transcriptions status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/conversations/reset-all", "application/json", nil)
	if err != nil {
		t.Fatalf("post reset-all: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset-all status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/conversations/reset-all")
	if err != nil {
		t.Fatalf("get reset-all: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET reset-all status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/transcription/unknown")
	if err != nil {
		t.Fatalf("get transcription: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown transcription status = %d, want 404", resp.StatusCode)
	}
}
