package store

import (
	"context"
	"database/sql"
	"time"
)

type taskMessageRow struct {
	ID          string         `db:"id"`
	TaskID      string         `db:"task_id"`
	PlanStepID  sql.NullString `db:"plan_step_id"`
	Role        string         `db:"role"`
	Content     string         `db:"content"`
	MessageType string         `db:"message_type"`
	ModelUsed   string         `db:"model_used"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r taskMessageRow) toTaskMessage() *TaskMessage {
	m := &TaskMessage{
		ID:          r.ID,
		TaskID:      r.TaskID,
		Role:        r.Role,
		Content:     r.Content,
		MessageType: r.MessageType,
		ModelUsed:   r.ModelUsed,
		CreatedAt:   r.CreatedAt,
	}
	if r.PlanStepID.Valid {
		m.PlanStepID = &r.PlanStepID.String
	}
	return m
}

// AddTaskMessage appends one message to a task. Role and content must be
// set; content must be non-empty (spec.md §3 TaskMessage invariant).
func (s *Store) AddTaskMessage(ctx context.Context, msg TaskMessage, now time.Time) (*TaskMessage, error) {
	if msg.Content == "" {
		return nil, &ValidationError{Field: "content", Message: "must not be empty"}
	}
	id := newID("msg")
	var planStepID sql.NullString
	if msg.PlanStepID != nil {
		planStepID = sql.NullString{String: *msg.PlanStepID, Valid: true}
	}
	query := s.pool.Writer().Rebind(`INSERT INTO task_messages
		(id, task_id, plan_step_id, role, content, message_type, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.pool.Writer().ExecContext(ctx, query,
		id, msg.TaskID, planStepID, msg.Role, msg.Content, msg.MessageType, msg.ModelUsed, now)
	if err != nil {
		return nil, &StorageError{Op: "addTaskMessage", Err: err}
	}
	msg.ID = id
	msg.CreatedAt = now
	return &msg, nil
}

// ListTaskMessages returns a task's messages in creation order.
func (s *Store) ListTaskMessages(ctx context.Context, taskID string) ([]*TaskMessage, error) {
	var rows []taskMessageRow
	query := s.pool.Reader().Rebind("SELECT * FROM task_messages WHERE task_id = ? ORDER BY created_at ASC, id ASC")
	if err := s.pool.Reader().SelectContext(ctx, &rows, query, taskID); err != nil {
		return nil, &StorageError{Op: "listTaskMessages", Err: err}
	}
	out := make([]*TaskMessage, len(rows))
	for i, r := range rows {
		out[i] = r.toTaskMessage()
	}
	return out, nil
}

// AddTaskContext appends one context entry (spec.md §3 TaskContext: append-only).
func (s *Store) AddTaskContext(ctx context.Context, taskID, contextType, content string, now time.Time) (*TaskContext, error) {
	id := newID("ctx")
	query := s.pool.Writer().Rebind(
		"INSERT INTO task_contexts (id, task_id, context_type, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if _, err := s.pool.Writer().ExecContext(ctx, query, id, taskID, contextType, content, now); err != nil {
		return nil, &StorageError{Op: "addTaskContext", Err: err}
	}
	return &TaskContext{ID: id, TaskID: taskID, ContextType: contextType, Content: content, CreatedAt: now}, nil
}

type taskContextRow struct {
	ID          string    `db:"id"`
	TaskID      string    `db:"task_id"`
	ContextType string    `db:"context_type"`
	Content     string    `db:"content"`
	CreatedAt   time.Time `db:"created_at"`
}

// ListTaskContext returns a task's context entries in creation order, used
// by the scheduler to substitute session context when inheritContext is true.
func (s *Store) ListTaskContext(ctx context.Context, taskID string) ([]*TaskContext, error) {
	var rows []taskContextRow
	query := s.pool.Reader().Rebind("SELECT * FROM task_contexts WHERE task_id = ? ORDER BY created_at ASC, id ASC")
	if err := s.pool.Reader().SelectContext(ctx, &rows, query, taskID); err != nil {
		return nil, &StorageError{Op: "listTaskContext", Err: err}
	}
	out := make([]*TaskContext, len(rows))
	for i, r := range rows {
		out[i] = &TaskContext{ID: r.ID, TaskID: r.TaskID, ContextType: r.ContextType, Content: r.Content, CreatedAt: r.CreatedAt}
	}
	return out, nil
}
