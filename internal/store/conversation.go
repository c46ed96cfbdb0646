package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type conversationRow struct {
	ID               string         `db:"id"`
	TaskID           sql.NullString `db:"task_id"`
	Title            string         `db:"title"`
	TotalTokens      int64          `db:"total_tokens"`
	LastModel        string         `db:"last_model"`
	ModelResponseIDs string         `db:"model_response_ids"`
	Status           string         `db:"status"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r conversationRow) toConversation() *Conversation {
	c := &Conversation{
		ID:          r.ID,
		Title:       r.Title,
		TotalTokens: r.TotalTokens,
		LastModel:   r.LastModel,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	_ = json.Unmarshal([]byte(r.ModelResponseIDs), &c.ModelResponseIDs)
	if r.TaskID.Valid {
		c.TaskID = &r.TaskID.String
	}
	return c
}

// GetOrCreateConversation returns the conversation for id, creating it with
// status active if absent (spec.md §3: id is "often conv-<taskId>").
func (s *Store) GetOrCreateConversation(ctx context.Context, id string, taskID *string, now time.Time) (*Conversation, error) {
	var row conversationRow
	query := s.pool.Reader().Rebind("SELECT * FROM conversations WHERE id = ?")
	err := s.pool.Reader().GetContext(ctx, &row, query, id)
	if err == nil {
		return row.toConversation(), nil
	}
	if err != sql.ErrNoRows {
		return nil, &StorageError{Op: "getOrCreateConversation:select", Err: err}
	}

	var taskIDVal sql.NullString
	if taskID != nil {
		taskIDVal = sql.NullString{String: *taskID, Valid: true}
	}
	insert := s.pool.Writer().Rebind(`INSERT INTO conversations
		(id, task_id, title, total_tokens, last_model, model_response_ids, status, created_at, updated_at)
		VALUES (?, ?, '', 0, '', '{}', ?, ?, ?)`)
	if _, err := s.pool.Writer().ExecContext(ctx, insert, id, taskIDVal, ConversationStatusActive, now, now); err != nil {
		return nil, &StorageError{Op: "getOrCreateConversation:insert", Err: err}
	}
	return &Conversation{ID: id, TaskID: taskID, Status: ConversationStatusActive, ModelResponseIDs: map[string]string{}, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateConversationModelResponse records the opaque response id returned by
// one agent and bumps the token counter and lastModel.
func (s *Store) UpdateConversationModelResponse(ctx context.Context, id, agentID, responseID, model string, tokensDelta int64, now time.Time) error {
	conv, err := s.GetOrCreateConversation(ctx, id, nil, now)
	if err != nil {
		return err
	}
	if conv.ModelResponseIDs == nil {
		conv.ModelResponseIDs = map[string]string{}
	}
	conv.ModelResponseIDs[agentID] = responseID
	encoded, err := json.Marshal(conv.ModelResponseIDs)
	if err != nil {
		return &ValidationError{Field: "modelResponseIds", Message: err.Error()}
	}
	query := s.pool.Writer().Rebind(`UPDATE conversations SET
		model_response_ids = ?, last_model = ?, total_tokens = total_tokens + ?, updated_at = ? WHERE id = ?`)
	_, err = s.pool.Writer().ExecContext(ctx, query, string(encoded), model, tokensDelta, now, id)
	if err != nil {
		return &StorageError{Op: "updateConversationModelResponse", Err: err}
	}
	return nil
}

// AddConversationMessage appends a message scoped to a conversation.
func (s *Store) AddConversationMessage(ctx context.Context, msg ConversationMessage, now time.Time) (*ConversationMessage, error) {
	if msg.Content == "" {
		return nil, &ValidationError{Field: "content", Message: "must not be empty"}
	}
	id := newID("cmsg")
	var taskID sql.NullString
	if msg.TaskID != nil {
		taskID = sql.NullString{String: *msg.TaskID, Valid: true}
	}
	query := s.pool.Writer().Rebind(`INSERT INTO conversation_messages
		(id, conversation_id, task_id, role, content, message_type, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.pool.Writer().ExecContext(ctx, query,
		id, msg.ConversationID, taskID, msg.Role, msg.Content, msg.MessageType, msg.ModelUsed, now)
	if err != nil {
		return nil, &StorageError{Op: "addConversationMessage", Err: err}
	}
	msg.ID = id
	msg.CreatedAt = now
	return &msg, nil
}
