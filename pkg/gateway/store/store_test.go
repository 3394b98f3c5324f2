package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alma-voice/alma/pkg/assistant"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveAssignsUniqueIDs(t *testing.T) {
	s := newTestStore(t)
	rec := Record{ConnectionID: "c_1", StartedAt: time.Now(), EndedAt: time.Now()}

	seen := make(map[string]struct{})
	for i := 0; i < 25; i++ {
		id, err := s.Save(rec)
		require.NoError(t, err)
		require.NotContains(t, seen, id)
		seen[id] = struct{}{}
	}

	list, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, list, 25)
}

func TestGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	rec := Record{
		ConnectionID: "c_abc",
		StartedAt:    started,
		EndedAt:      started.Add(90 * time.Second),
		Dialog: []assistant.Message{
			{Role: assistant.RoleSystem, Content: "eres alma"},
			{Role: assistant.RoleUser, Content: "qué hora es"},
			{Role: assistant.RoleAssistant, Content: "son las diez"},
		},
		ChunksReceived:     420,
		ConversationActive: true,
		AudioFile:          "audio/audio_c_abc.wav",
		MessageCount:       2,
	}

	id, err := s.Save(rec)
	require.NoError(t, err)

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, rec.ConnectionID, got.ConnectionID)
	require.Equal(t, rec.Dialog, got.Dialog)
	require.Equal(t, rec.ChunksReceived, got.ChunksReceived)
	require.Equal(t, rec.MessageCount, got.MessageCount)
	require.True(t, got.StartedAt.Equal(started))
}

func TestGetUnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetRejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"../etc/passwd", "..", "a/b", ""} {
		_, err := s.Get(id)
		require.ErrorIs(t, err, ErrNotFound, "id=%q", id)
	}
}

func TestListCapsAndOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for i := 0; i < 15; i++ {
		id, err := s.Save(Record{ConnectionID: "c", StartedAt: time.Now(), EndedAt: time.Now()})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, list, 10)
	for i := 1; i < len(list); i++ {
		require.Greater(t, list[i-1].ID, list[i].ID, "expected newest-first ordering")
	}
	// The newest saved record is first.
	require.Equal(t, ids[len(ids)-1], list[0].ID)
}

func TestListEmptyDir(t *testing.T) {
	s := newTestStore(t)
	list, err := s.List(10)
	require.NoError(t, err)
	require.Empty(t, list)
}
