package session

import (
	"strings"
	"time"

	"github.com/alma-voice/alma/pkg/assistant"
	"github.com/alma-voice/alma/pkg/gateway/live/protocol"
)

// conversation is the per-session dialog state machine. It is not safe
// for concurrent use; callers hold the session mutex.
type conversation struct {
	systemPrompt string

	active     bool
	generation uint64
	startedAt  time.Time

	dialog []assistant.Message
	// buffer collects utterances spoken while the conversation is idle.
	// An explicit flush joins and answers them as one question.
	buffer []string
}

func newConversation(systemPrompt string) *conversation {
	return &conversation{
		systemPrompt: systemPrompt,
		dialog: []assistant.Message{
			{Role: assistant.RoleSystem, Content: systemPrompt},
		},
	}
}

// activate opens a fresh dialog epoch. The generation counter moves so
// that completions dispatched before the wake cannot land in it.
func (c *conversation) activate() {
	c.active = true
	c.generation++
	c.startedAt = time.Now()
	c.dialog = []assistant.Message{
		{Role: assistant.RoleSystem, Content: c.systemPrompt},
	}
	c.buffer = nil
}

func (c *conversation) deactivate() {
	c.active = false
	c.generation++
	c.dialog = []assistant.Message{
		{Role: assistant.RoleSystem, Content: c.systemPrompt},
	}
	c.buffer = nil
}

// reset has the same effect as deactivate and reports whether there was
// anything to clear.
func (c *conversation) reset() bool {
	had := c.active || len(c.dialog) > 1 || len(c.buffer) > 0
	c.deactivate()
	return had
}

func (c *conversation) appendUser(text string) {
	c.dialog = append(c.dialog, assistant.Message{Role: assistant.RoleUser, Content: text})
}

// appendAssistant records a completion only while the conversation is
// active and still in the epoch the turn was dispatched in. Completions
// for idle-flush answers and stale epochs are dropped.
func (c *conversation) appendAssistant(generation uint64, text string) bool {
	if !c.active || generation != c.generation {
		return false
	}
	c.dialog = append(c.dialog, assistant.Message{Role: assistant.RoleAssistant, Content: text})
	return true
}

func (c *conversation) bufferText(text string) {
	c.buffer = append(c.buffer, text)
}

func (c *conversation) flushBuffer() string {
	joined := strings.TrimSpace(strings.Join(c.buffer, " "))
	c.buffer = nil
	return joined
}

// snapshotDialog copies the dialog so a turn goroutine can read it
// without holding the session mutex.
func (c *conversation) snapshotDialog() []assistant.Message {
	out := make([]assistant.Message, len(c.dialog))
	copy(out, c.dialog)
	return out
}

func (c *conversation) state() protocol.ConversationState {
	st := protocol.ConversationState{
		Active:       c.active,
		MessageCount: len(c.dialog) - 1,
		HasHistory:   len(c.dialog) > 1,
	}
	if c.active {
		st.DurationMS = time.Since(c.startedAt).Milliseconds()
	}
	return st
}
