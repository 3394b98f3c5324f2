// Package sessions tracks the live sessions of a gateway process so that
// HTTP handlers and shutdown can reach into them.
package sessions

import (
	"context"
	"sync"
)

// Snapshot is a point-in-time view of one session's conversation.
type Snapshot struct {
	SessionID      string `json:"session_id"`
	Active         bool   `json:"active"`
	MessageCount   int    `json:"message_count"`
	DurationMS     int64  `json:"duration_ms"`
	HasHistory     bool   `json:"has_history"`
	Recording      bool   `json:"recording"`
	ChunksReceived int64  `json:"chunks_received"`
}

type Handle struct {
	Cancel func()
	// Reset clears the session's conversation and reports whether there
	// was anything to clear.
	Reset func() bool
	State func() Snapshot
}

type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
}

type trackedSession struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
	}
}

func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedSession{handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshots returns a view of every tracked session. Sessions whose
// handle has no State func are skipped.
func (t *Tracker) Snapshots() []Snapshot {
	if t == nil {
		return nil
	}

	var states []func() Snapshot
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.State == nil {
			continue
		}
		states = append(states, entry.handle.State)
	}
	t.mu.Unlock()

	out := make([]Snapshot, 0, len(states))
	for _, state := range states {
		out = append(out, state())
	}
	return out
}

// ResetAll clears every tracked conversation and reports how many
// sessions actually had state to clear.
func (t *Tracker) ResetAll() (reset int) {
	if t == nil {
		return 0
	}

	var resets []func() bool
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Reset == nil {
			continue
		}
		resets = append(resets, entry.handle.Reset)
	}
	t.mu.Unlock()

	for _, fn := range resets {
		if fn() {
			reset++
		}
	}
	return reset
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
