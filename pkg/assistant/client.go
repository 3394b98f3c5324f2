// Package assistant streams chat completions from an Ollama-compatible
// generative text service. One Stream call is one dialog turn: the full
// ordered dialog goes up, incremental text fragments come back as
// newline-delimited JSON until the service marks the stream done.
package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn in a dialog.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusError reports a non-success HTTP response from the service.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("assistant: unexpected status %s", e.Status)
	}
	return fmt.Sprintf("assistant: unexpected status %s: %s", e.Status, e.Body)
}

// Client issues streaming chat requests. The zero value is not usable; set
// BaseURL and Model at minimum.
type Client struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64

	// HTTPClient defaults to http.DefaultClient. Callers should supply a
	// client without a global timeout; cancellation is via context.
	HTTPClient *http.Client
}

type chatOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Stream issues one streaming chat request with the given dialog. Every text
// fragment is passed to onDelta as soon as it is read; the concatenation of
// all fragments is returned once the service reports completion. A non-2xx
// response yields a *StatusError and an empty answer. The request is aborted
// when ctx is cancelled.
func (c *Client) Stream(ctx context.Context, dialog []Message, onDelta func(delta string)) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    c.Model,
		Messages: dialog,
		Stream:   true,
		Options: chatOptions{
			NumPredict:  c.MaxTokens,
			Temperature: c.Temperature,
			TopP:        c.TopP,
		},
	})
	if err != nil {
		return "", fmt.Errorf("assistant: encode request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("assistant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Tolerate the odd malformed line rather than aborting the turn.
			continue
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			if onDelta != nil {
				onDelta(chunk.Message.Content)
			}
		}
		if chunk.Done {
			return full.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("assistant: read stream: %w", err)
	}
	return "", fmt.Errorf("assistant: stream ended without done marker")
}

// Ping checks the service is reachable. Used at startup for a log line only;
// the server runs regardless.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("assistant: build request: %w", err)
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assistant: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
