// Package store persists transcript records as durable artifacts on disk.
// Every save produces a new, uniquely named file; nothing is ever rewritten,
// so repeated stop/disconnect triggers cannot corrupt prior records.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/alma-voice/alma/pkg/assistant"
)

const (
	filePrefix = "transcript_"
	fileSuffix = ".json"
)

// ErrNotFound is returned by Get when no record with the given id exists.
var ErrNotFound = errors.New("store: transcript not found")

// Record is one persisted transcript. Immutable once written.
type Record struct {
	ID                 string              `json:"id"`
	ConnectionID       string              `json:"connection_id"`
	StartedAt          time.Time           `json:"started_at"`
	EndedAt            time.Time           `json:"ended_at"`
	Dialog             []assistant.Message `json:"dialog"`
	ChunksReceived     int64               `json:"chunks_received"`
	ConversationActive bool                `json:"conversation_active"`
	AudioFile          string              `json:"audio_file,omitempty"`
	MessageCount       int                 `json:"message_count"`
}

// Summary is the listing view of a record.
type Summary struct {
	ID                 string    `json:"id"`
	ConnectionID       string    `json:"connection_id"`
	CreatedAt          time.Time `json:"created_at"`
	DialogTurns        int       `json:"dialog_turns"`
	ChunksReceived     int64     `json:"chunks_received"`
	ConversationActive bool      `json:"conversation_active"`
	MessageCount       int       `json:"message_count"`
	DurationMS         int64     `json:"duration_ms"`
}

// Store writes and reads transcript artifacts under a single directory.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save assigns the record a fresh id and writes it to a new artifact.
// ULIDs sort lexicographically by creation time, which List relies on.
func (s *Store) Save(rec Record) (string, error) {
	rec.ID = ulid.Make().String()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: encode record: %w", err)
	}
	path := filepath.Join(s.dir, filePrefix+rec.ID+fileSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store: write %q: %w", path, err)
	}
	return rec.ID, nil
}

// List returns up to n record summaries, newest first.
func (s *Store) List(n int) ([]Summary, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(id)
		if err != nil {
			// A racing delete or a corrupt artifact should not break the
			// listing of everything else.
			continue
		}
		created := rec.StartedAt
		if parsed, err := ulid.Parse(rec.ID); err == nil {
			created = time.UnixMilli(int64(parsed.Time())).UTC()
		}
		out = append(out, Summary{
			ID:                 rec.ID,
			ConnectionID:       rec.ConnectionID,
			CreatedAt:          created,
			DialogTurns:        len(rec.Dialog),
			ChunksReceived:     rec.ChunksReceived,
			ConversationActive: rec.ConversationActive,
			MessageCount:       rec.MessageCount,
			DurationMS:         rec.EndedAt.Sub(rec.StartedAt).Milliseconds(),
		})
	}
	return out, nil
}

// Get loads one record by id.
func (s *Store) Get(id string) (Record, error) {
	// Parsing doubles as input sanitization: a ULID cannot contain path
	// separators or dots.
	if _, err := ulid.Parse(id); err != nil {
		return Record{}, ErrNotFound
	}
	path := filepath.Join(s.dir, filePrefix+id+fileSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("store: read %q: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("store: decode %q: %w", path, err)
	}
	return rec, nil
}

func (s *Store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: read dir %q: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	return ids, nil
}
