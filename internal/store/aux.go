package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Andy963/ads-sub001/internal/common/stringutil"
)

// AddHistoryEntry appends one ring-buffered entry and trims anything beyond
// HistoryRingCap for the (namespace, sessionId) pair (spec.md §3 HistoryEntry).
func (s *Store) AddHistoryEntry(ctx context.Context, e HistoryEntry, now time.Time) (*HistoryEntry, error) {
	text := stringutil.TruncateStringWithEllipsis(e.Text, HistoryMaxTextLength)
	query := s.pool.Writer().Rebind(
		"INSERT INTO history_entries (namespace, session_id, role, kind, text, ts) VALUES (?, ?, ?, ?, ?, ?)")
	res, err := s.pool.Writer().ExecContext(ctx, query, e.Namespace, e.SessionID, e.Role, e.Kind, text, now)
	if err != nil {
		return nil, &StorageError{Op: "addHistoryEntry", Err: err}
	}
	id, _ := res.LastInsertId()

	trimQuery := s.pool.Writer().Rebind(`DELETE FROM history_entries WHERE namespace = ? AND session_id = ?
		AND id NOT IN (
			SELECT id FROM history_entries WHERE namespace = ? AND session_id = ?
			ORDER BY ts DESC, id DESC LIMIT ?
		)`)
	if _, err := s.pool.Writer().ExecContext(ctx, trimQuery, e.Namespace, e.SessionID, e.Namespace, e.SessionID, HistoryRingCap); err != nil {
		return nil, &StorageError{Op: "addHistoryEntry:trim", Err: err}
	}

	e.ID = id
	e.Text = text
	e.Timestamp = now
	return &e, nil
}

type historyRow struct {
	ID        int64     `db:"id"`
	Namespace string    `db:"namespace"`
	SessionID string    `db:"session_id"`
	Role      string    `db:"role"`
	Kind      string    `db:"kind"`
	Text      string    `db:"text"`
	Timestamp time.Time `db:"ts"`
}

// GetHistory returns a session's history entries in chronological order.
func (s *Store) GetHistory(ctx context.Context, namespace, sessionID string) ([]*HistoryEntry, error) {
	var rows []historyRow
	query := s.pool.Reader().Rebind(
		"SELECT * FROM history_entries WHERE namespace = ? AND session_id = ? ORDER BY ts ASC, id ASC")
	if err := s.pool.Reader().SelectContext(ctx, &rows, query, namespace, sessionID); err != nil {
		return nil, &StorageError{Op: "getHistory", Err: err}
	}
	out := make([]*HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = &HistoryEntry{ID: r.ID, Namespace: r.Namespace, SessionID: r.SessionID, Role: r.Role, Kind: r.Kind, Text: r.Text, Timestamp: r.Timestamp}
	}
	return out, nil
}

// ClearHistory purges all history for a session (spec.md §4.8 clear_history).
func (s *Store) ClearHistory(ctx context.Context, namespace, sessionID string) error {
	query := s.pool.Writer().Rebind("DELETE FROM history_entries WHERE namespace = ? AND session_id = ?")
	if _, err := s.pool.Writer().ExecContext(ctx, query, namespace, sessionID); err != nil {
		return &StorageError{Op: "clearHistory", Err: err}
	}
	return nil
}

// GetKV reads one namespaced key/value row; returns ("", false, nil) if absent.
func (s *Store) GetKV(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	query := s.pool.Reader().Rebind("SELECT value FROM kv_state WHERE namespace = ? AND key = ?")
	err := s.pool.Reader().GetContext(ctx, &value, query, namespace, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "getKV", Err: err}
	}
	return value, true, nil
}

// SetKV upserts one namespaced key/value row, used for the cwd store,
// migration markers, and the thread-id cache (spec.md §3 KVState).
func (s *Store) SetKV(ctx context.Context, namespace, key, value string, now time.Time) error {
	var query string
	if s.driver == "pgx" {
		query = s.pool.Writer().Rebind(`INSERT INTO kv_state (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	} else {
		query = s.pool.Writer().Rebind(`INSERT INTO kv_state (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	}
	if _, err := s.pool.Writer().ExecContext(ctx, query, namespace, key, value, now); err != nil {
		return &StorageError{Op: "setKV", Err: err}
	}
	return nil
}

// MigrationDone reports whether a one-time legacy-JSON migration has already
// run, and records it (spec.md §9 "Legacy JSON migration").
func (s *Store) MigrationDone(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.GetKV(ctx, "migrations", name)
	return ok, err
}

// MarkMigrationDone records that a one-time migration has completed.
func (s *Store) MarkMigrationDone(ctx context.Context, name string, now time.Time) error {
	return s.SetKV(ctx, "migrations", name, "done", now)
}

// SetModelConfig upserts one opaque model parameter for an agent.
func (s *Store) SetModelConfig(ctx context.Context, agentID, key, value string, now time.Time) error {
	query := s.pool.Writer().Rebind(`INSERT INTO model_configs (agent_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (agent_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if _, err := s.pool.Writer().ExecContext(ctx, query, agentID, key, value, now); err != nil {
		return &StorageError{Op: "setModelConfig", Err: err}
	}
	return nil
}

// ListModelConfig returns every stored parameter for one agent.
func (s *Store) ListModelConfig(ctx context.Context, agentID string) (map[string]string, error) {
	type row struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	var rows []row
	query := s.pool.Reader().Rebind("SELECT key, value FROM model_configs WHERE agent_id = ?")
	if err := s.pool.Reader().SelectContext(ctx, &rows, query, agentID); err != nil {
		return nil, &StorageError{Op: "listModelConfig", Err: err}
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// RecordAttachment persists one image attachment's metadata (spec.md
// SPEC_FULL §3: durable record backing the prompt image cleanup guarantee).
func (s *Store) RecordAttachment(ctx context.Context, a Attachment, now time.Time) (*Attachment, error) {
	id := newID("att")
	query := s.pool.Writer().Rebind(`INSERT INTO attachments
		(id, session_id, original_name, mime_type, size_bytes, stored_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.pool.Writer().ExecContext(ctx, query, id, a.SessionID, a.OriginalName, a.MimeType, a.SizeBytes, a.StoredPath, now)
	if err != nil {
		return nil, &StorageError{Op: "recordAttachment", Err: err}
	}
	a.ID = id
	a.CreatedAt = now
	return &a, nil
}

// DeleteAttachment removes one attachment's metadata row after its file has
// been garbage-collected from disk.
func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	query := s.pool.Writer().Rebind("DELETE FROM attachments WHERE id = ?")
	if _, err := s.pool.Writer().ExecContext(ctx, query, id); err != nil {
		return &StorageError{Op: "deleteAttachment", Err: err}
	}
	return nil
}
