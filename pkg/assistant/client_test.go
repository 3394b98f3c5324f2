package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ndjsonServer(t *testing.T, lines []string, capture *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
}

func TestStreamRelaysDeltasAndConcatenates(t *testing.T) {
	var got chatRequest
	srv := ndjsonServer(t, []string{
		`{"message":{"content":"Hola"},"done":false}`,
		``,
		`{"message":{"content":", "},"done":false}`,
		`not json, skipped`,
		`{"message":{"content":"mundo"},"done":false}`,
		`{"message":{"content":""},"done":true}`,
	}, &got)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Model: "qwen2.5:7b-instruct", MaxTokens: 512, Temperature: 0.7, TopP: 0.9}
	var deltas []string
	full, err := c.Stream(context.Background(), []Message{
		{Role: RoleSystem, Content: "eres alma"},
		{Role: RoleUser, Content: "saluda"},
	}, func(d string) { deltas = append(deltas, d) })

	require.NoError(t, err)
	require.Equal(t, "Hola, mundo", full)
	require.Equal(t, []string{"Hola", ", ", "mundo"}, deltas)

	require.Equal(t, "qwen2.5:7b-instruct", got.Model)
	require.True(t, got.Stream)
	require.Len(t, got.Messages, 2)
	require.Equal(t, RoleSystem, got.Messages[0].Role)
	require.Equal(t, 512, got.Options.NumPredict)
	require.InDelta(t, 0.7, got.Options.Temperature, 1e-9)
	require.InDelta(t, 0.9, got.Options.TopP, 1e-9)
}

func TestStreamNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Model: "missing"}
	_, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hola"}}, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Contains(t, statusErr.Error(), "model not found")
}

func TestStreamTruncatedStream(t *testing.T) {
	srv := ndjsonServer(t, []string{
		`{"message":{"content":"partial"},"done":false}`,
	}, nil)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Model: "m"}
	_, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hola"}}, nil)
	require.Error(t, err)
}

func TestStreamCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"thinking"},"done":false}`)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{BaseURL: srv.URL, Model: "m"}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Stream(ctx, []Message{{Role: RoleUser, Content: "hola"}}, nil)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not abort on cancellation")
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Model: "m"}
	require.NoError(t, c.Ping(context.Background()))

	c.BaseURL = "http://127.0.0.1:1"
	require.Error(t, c.Ping(context.Background()))
}
