package session

import (
	"testing"

	"github.com/alma-voice/alma/pkg/assistant"
)

func TestConversationLifecycle(t *testing.T) {
	c := newConversation("system prompt")

	st := c.state()
	if st.Active || st.MessageCount != 0 || st.HasHistory {
		t.Fatalf("fresh conversation state = %+v", st)
	}

	c.activate()
	c.appendUser("qué hora es")
	gen := c.generation
	if !c.appendAssistant(gen, "son las tres") {
		t.Fatal("completion for current epoch should land")
	}

	st = c.state()
	if !st.Active || st.MessageCount != 2 || !st.HasHistory {
		t.Fatalf("state = %+v, want active with 2 messages", st)
	}

	c.deactivate()
	st = c.state()
	if st.Active {
		t.Fatal("deactivate should leave conversation idle")
	}
	if st.HasHistory || st.MessageCount != 0 {
		t.Fatalf("deactivate should clear history, state = %+v", st)
	}
	if len(c.dialog) != 1 || c.dialog[0].Role != assistant.RoleSystem {
		t.Fatalf("dialog after deactivate = %+v", c.dialog)
	}
}

func TestActivateResetsDialog(t *testing.T) {
	c := newConversation("system prompt")
	c.activate()
	c.appendUser("primera pregunta")
	c.deactivate()

	c.activate()
	if len(c.dialog) != 1 {
		t.Fatalf("activate should start from the system prompt, dialog = %+v", c.dialog)
	}
}

func TestStaleCompletionDiscarded(t *testing.T) {
	c := newConversation("system prompt")
	c.activate()
	c.appendUser("cuéntame un cuento")
	gen := c.generation

	c.reset()
	c.activate()
	c.appendUser("otra pregunta")

	if c.appendAssistant(gen, "érase una vez") {
		t.Fatal("completion from a previous epoch must be dropped")
	}
	for _, m := range c.dialog {
		if m.Role == assistant.RoleAssistant {
			t.Fatalf("stale assistant message leaked into dialog: %q", m.Content)
		}
	}
}

func TestIdleCompletionDiscarded(t *testing.T) {
	// An explicit flush streams its answer while idle, but the completion
	// never lands in the dialog.
	c := newConversation("system prompt")
	c.bufferText("qué día es hoy")
	if c.appendAssistant(c.generation, "hoy es lunes") {
		t.Fatal("completion must not land while the conversation is idle")
	}
	if len(c.dialog) != 1 {
		t.Fatalf("dialog length = %d, want 1", len(c.dialog))
	}
}

func TestResetReportsWhetherAnythingCleared(t *testing.T) {
	c := newConversation("system prompt")
	if c.reset() {
		t.Fatal("reset of a fresh conversation has nothing to clear")
	}
	c.bufferText("hola")
	if !c.reset() {
		t.Fatal("buffered idle speech counts as state")
	}
	c.activate()
	if !c.reset() {
		t.Fatal("active conversation counts as state")
	}
}

func TestIdleBufferJoins(t *testing.T) {
	c := newConversation("system prompt")
	c.bufferText("primero")
	c.bufferText("segundo")
	c.bufferText("tercero")
	if got := c.flushBuffer(); got != "primero segundo tercero" {
		t.Fatalf("flushBuffer = %q", got)
	}
	if got := c.flushBuffer(); got != "" {
		t.Fatalf("second flush = %q, want empty", got)
	}
}

func TestSnapshotDialogIsACopy(t *testing.T) {
	c := newConversation("system prompt")
	c.activate()
	c.appendUser("hola")
	snap := c.snapshotDialog()
	c.appendAssistant(c.generation, "buenas")
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
}
