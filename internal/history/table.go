package history

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/doubt-solver/internal/domain"
)

// SchemaVersion is written with every table so the layout can be migrated later.
const SchemaVersion = 1

type table struct {
	Version  int
	Sessions map[domain.SessionID]domain.Transcript

	// unreadable holds session entries that failed to decode. They are hidden
	// from readers and written back untouched until the session is rewritten.
	unreadable map[domain.SessionID]json.RawMessage
	problems   []error
}

type wireTable struct {
	Version  int                                  `json:"version"`
	Sessions map[domain.SessionID]json.RawMessage `json:"sessions"`
}

func newTable() *table {
	return &table{
		Version:    SchemaVersion,
		Sessions:   make(map[domain.SessionID]domain.Transcript),
		unreadable: make(map[domain.SessionID]json.RawMessage),
	}
}

// decodeTable reads a versioned table, or the unversioned layout written by the
// browser extension: a bare object mapping session IDs to message arrays.
// A session entry that does not decode is set aside instead of failing the table.
func decodeTable(raw []byte) (*table, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}

	entries := make(map[domain.SessionID]json.RawMessage, len(probe))
	if v, ok := probe["version"]; ok && isNumber(v) {
		var w wireTable
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode table: %w", err)
		}
		if w.Version > SchemaVersion {
			return nil, fmt.Errorf("unsupported chat history version %d", w.Version)
		}
		for id, msgs := range w.Sessions {
			entries[id] = msgs
		}
	} else {
		for id, msgs := range probe {
			entries[domain.SessionID(id)] = msgs
		}
	}

	t := newTable()
	for id, msgs := range entries {
		transcript, err := decodeTranscript(msgs)
		if err != nil {
			t.unreadable[id] = msgs
			t.problems = append(t.problems, fmt.Errorf("session %q: %w", id, err))
			continue
		}
		t.Sessions[id] = transcript
	}
	return t, nil
}

func decodeTranscript(raw json.RawMessage) (domain.Transcript, error) {
	var transcript domain.Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		return nil, err
	}
	for i, m := range transcript {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	return transcript, nil
}

// set replaces the entry for id, discarding any unreadable entry under it.
func (t *table) set(id domain.SessionID, transcript domain.Transcript) {
	delete(t.unreadable, id)
	t.Sessions[id] = transcript
}

// remove deletes the entry for id and reports whether there was one.
func (t *table) remove(id domain.SessionID) bool {
	_, ok := t.Sessions[id]
	_, broken := t.unreadable[id]
	delete(t.Sessions, id)
	delete(t.unreadable, id)
	return ok || broken
}

func (t *table) encode() ([]byte, error) {
	w := wireTable{
		Version:  SchemaVersion,
		Sessions: make(map[domain.SessionID]json.RawMessage, len(t.Sessions)+len(t.unreadable)),
	}
	for id, raw := range t.unreadable {
		w.Sessions[id] = raw
	}
	for id, msgs := range t.Sessions {
		if msgs == nil {
			msgs = domain.Transcript{}
		}
		raw, err := json.Marshal(msgs)
		if err != nil {
			return nil, err
		}
		w.Sessions[id] = raw
	}
	return json.Marshal(w)
}

// isNumber reports whether raw is a JSON number. A legacy session titled
// "version" holds an array instead.
func isNumber(raw json.RawMessage) bool {
	var n json.Number
	return json.Unmarshal(raw, &n) == nil
}
