// Package history persists per-problem chat transcripts in the key-value store.
//
// The whole chat history table lives under a single key. Every mutation reads the
// table, changes exactly one session entry and writes the table back. Mutations made
// through one Store are serialized by a table-wide lock, so concurrent callers in
// this process cannot overwrite each other's changes.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/store"
)

// TableKey is the key-value store key holding the chat history table.
const TableKey = "chatHistory"

// Store reads and mutates transcripts keyed by session ID.
type Store struct {
	kv     store.Store
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a history store backed by kv.
func New(kv store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// MutateFunc receives the current transcript of a session and returns the new one.
// Returning keep=false deletes the session entry.
type MutateFunc func(current domain.Transcript) (next domain.Transcript, keep bool)

// Load returns the transcript for id. It never fails: a missing table, a missing
// session or an unreadable store all produce an empty transcript.
func (s *Store) Load(ctx context.Context, id domain.SessionID) domain.Transcript {
	t, err := s.readTable(ctx)
	if err != nil {
		s.logger.Warn("Failed to load chat history", "session_id", id, "error", err)
		return domain.Transcript{}
	}
	msgs := t.Sessions[id]
	out := make(domain.Transcript, len(msgs))
	copy(out, msgs)
	return out
}

// Append adds msg at the end of the session's transcript.
func (s *Store) Append(ctx context.Context, msg domain.Message, id domain.SessionID) error {
	return s.AppendBatch(ctx, []domain.Message{msg}, id)
}

// AppendBatch adds msgs, in order, at the end of the session's transcript using a
// single read-modify-write. An empty batch does nothing.
func (s *Store) AppendBatch(ctx context.Context, msgs []domain.Message, id domain.SessionID) error {
	if len(msgs) == 0 {
		return nil
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("append to %q: %w", id, err)
		}
	}
	return s.Mutate(ctx, id, func(current domain.Transcript) (domain.Transcript, bool) {
		return append(current, msgs...), true
	})
}

// Clear removes the session entry entirely, so the next Load behaves like a
// session that was never opened.
func (s *Store) Clear(ctx context.Context, id domain.SessionID) error {
	return s.Mutate(ctx, id, func(domain.Transcript) (domain.Transcript, bool) {
		return nil, false
	})
}

// Mutate applies fn to one session entry inside a read-modify-write of the table.
func (s *Store) Mutate(ctx context.Context, id domain.SessionID, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.readTable(ctx)
	if err != nil {
		return fmt.Errorf("read chat history: %w", err)
	}

	current := t.Sessions[id]
	next, keep := fn(append(domain.Transcript(nil), current...))
	if !keep {
		if !t.remove(id) {
			return nil
		}
	} else {
		t.set(id, next)
	}

	if err := s.writeTable(ctx, t); err != nil {
		return fmt.Errorf("write chat history: %w", err)
	}
	return nil
}

// SessionSummary describes one stored session.
type SessionSummary struct {
	SessionID    domain.SessionID `json:"session_id"`
	MessageCount int              `json:"message_count"`
	LastActivity string           `json:"last_activity,omitempty"`
}

// Sessions lists the stored sessions ordered by session ID.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	t, err := s.readTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chat history: %w", err)
	}

	out := make([]SessionSummary, 0, len(t.Sessions))
	for id, msgs := range t.Sessions {
		sum := SessionSummary{SessionID: id, MessageCount: len(msgs)}
		if last, ok := msgs.Last(); ok {
			sum.LastActivity = last.Timestamp
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (s *Store) readTable(ctx context.Context) (*table, error) {
	raw, err := s.kv.Get(ctx, TableKey)
	if errors.Is(err, store.ErrNotFound) {
		return newTable(), nil
	}
	if err != nil {
		return nil, err
	}
	t, err := decodeTable(raw)
	if err != nil {
		return nil, err
	}
	for _, problem := range t.problems {
		s.logger.Warn("Skipping unreadable chat history entry", "error", problem)
	}
	return t, nil
}

func (s *Store) writeTable(ctx context.Context, t *table) error {
	raw, err := t.encode()
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	return s.kv.Set(ctx, TableKey, raw)
}
