// Package protocol defines the typed JSON envelopes exchanged over the live
// WebSocket channel. Every frame is a JSON object with a "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// Client → server.

type ClientAudioChunk struct {
	Type    string  `json:"type"`
	Samples []int16 `json:"samples"`
}

// PCMBytes returns the frame as little-endian 16-bit PCM, the byte layout
// both the recognizer and the audio encoder consume.
func (c ClientAudioChunk) PCMBytes() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		out[i*2] = byte(uint16(s))
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

type ClientStartRecording struct {
	Type string `json:"type"`
}

type ClientStopRecording struct {
	Type string `json:"type"`
}

type ClientGetFinalTranscription struct {
	Type string `json:"type"`
}

type ClientResetConversation struct {
	Type string `json:"type"`
}

type ClientGetConversationState struct {
	Type string `json:"type"`
}

// DecodeClientMessage decodes one inbound text frame into its typed form.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "audio_chunk":
		var msg ClientAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_chunk", "")
		}
		if len(msg.Samples) == 0 {
			return nil, badRequest("audio_chunk.samples is required", "samples")
		}
		return msg, nil
	case "start_recording":
		return ClientStartRecording{Type: typ}, nil
	case "stop_recording":
		return ClientStopRecording{Type: typ}, nil
	case "get_final_transcription":
		return ClientGetFinalTranscription{Type: typ}, nil
	case "reset_conversation":
		return ClientResetConversation{Type: typ}, nil
	case "get_conversation_state":
		return ClientGetConversationState{Type: typ}, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// Server → client.

type ServerConnected struct {
	Type                  string `json:"type"`
	Message               string `json:"message"`
	SampleRate            int    `json:"sample_rate"`
	Channels              int    `json:"channels"`
	BitDepth              int    `json:"bit_depth"`
	ExpectedChunkSize     int    `json:"expected_chunk_size"`
	SupportsTranscription bool   `json:"supports_transcription"`
	TranscriptionEngine   string `json:"transcription_engine,omitempty"`
	AssistantModel        string `json:"assistant_model"`
	WakePhrase            string `json:"wake_phrase"`
}

type ServerTranscription struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
}

type ServerAudioAck struct {
	Type           string `json:"type"`
	ChunksReceived int64  `json:"chunks_received"`
	TotalBytes     int64  `json:"total_bytes"`
	Recording      bool   `json:"recording"`
	TimestampMS    int64  `json:"timestamp_ms"`
}

type ServerAudioError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type ServerAssistantStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"` // thinking | idle
}

type ServerAssistantText struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type ServerAssistantTextDone struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerAssistantError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type ServerVoiceCommandDetected struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Command string `json:"command"`
	Text    string `json:"text"`
}

type ConversationState struct {
	Active       bool  `json:"active"`
	MessageCount int   `json:"message_count"`
	DurationMS   int64 `json:"duration_ms"`
	HasHistory   bool  `json:"has_history"`
}

type ServerConversationState struct {
	Type string `json:"type"`
	ConversationState
}

type ServerConversationReset struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ServerStats struct {
	Type                string            `json:"type"`
	ActiveConnections   int64             `json:"active_connections"`
	ChunksReceived      int64             `json:"chunks_received"`
	DurationMS          int64             `json:"duration_ms"`
	TotalTranscriptions int64             `json:"total_transcriptions"`
	RecognizerReady     bool              `json:"recognizer_ready"`
	Recording           bool              `json:"recording"`
	Conversation        ConversationState `json:"conversation"`
}
