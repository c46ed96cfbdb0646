// Package store implements the embedded SQL persistence layer: tasks, plan
// steps, task messages, task context, conversations, history, model
// configuration, and namespaced key/value state.
package store

import "time"

// Task statuses (spec.md §3, §4.7).
const (
	TaskStatusQueued    = "queued"
	TaskStatusPending   = "pending"
	TaskStatusPlanning  = "planning"
	TaskStatusRunning   = "running"
	TaskStatusPaused    = "paused"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
)

// Task is the durable unit of scheduled agent work.
type Task struct {
	ID               string
	Title            string
	Prompt           string
	Model            string
	ModelParams      map[string]string
	Status           string
	Priority         int
	QueueOrder       int64
	CreatedAt        time.Time
	QueuedAt         *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	PromptInjectedAt *time.Time
	ArchivedAt       *time.Time
	ParentTaskID     *string
	ThreadID         *string
	Result           string
	Error            string
	RetryCount       int
	MaxRetries       int
	CreatedBy        string
}

// PlanStep statuses.
const (
	PlanStepStatusPending   = "pending"
	PlanStepStatusRunning   = "running"
	PlanStepStatusCompleted = "completed"
	PlanStepStatusSkipped   = "skipped"
	PlanStepStatusFailed    = "failed"
)

// PlanStep is one step of a task's plan.
type PlanStep struct {
	ID          string
	TaskID      string
	StepNumber  int
	Title       string
	Description string
	Status      string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Message roles shared by TaskMessage and ConversationMessage.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// TaskMessage is one message exchanged while executing a task.
type TaskMessage struct {
	ID          string
	TaskID      string
	PlanStepID  *string
	Role        string
	Content     string
	MessageType string
	ModelUsed   string
	CreatedAt   time.Time
}

// TaskContext is an append-only context entry attached to a task.
type TaskContext struct {
	ID          string
	TaskID      string
	ContextType string
	Content     string
	CreatedAt   time.Time
}

// Conversation statuses.
const (
	ConversationStatusActive   = "active"
	ConversationStatusArchived = "archived"
)

// Conversation groups messages independent of any particular task.
type Conversation struct {
	ID              string
	TaskID          *string
	Title           string
	TotalTokens     int64
	LastModel       string
	ModelResponseIDs map[string]string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ConversationMessage mirrors TaskMessage but scoped to a conversation.
type ConversationMessage struct {
	ID             string
	ConversationID string
	TaskID         *string
	Role           string
	Content        string
	MessageType    string
	ModelUsed      string
	CreatedAt      time.Time
}

// HistoryEntry roles and kinds (spec.md §3).
const (
	HistoryRoleUser   = "user"
	HistoryRoleAI     = "ai"
	HistoryRoleStatus = "status"

	HistoryKindCommand = "command"
	HistoryKindError   = "error"
	HistoryKindStatus  = "status"
	HistoryKindNull    = ""
)

// HistoryEntry is one ring-buffered console history row.
type HistoryEntry struct {
	ID        int64
	Namespace string
	SessionID string
	Role      string
	Kind      string
	Text      string
	Timestamp time.Time
}

// HistoryMaxTextLength bounds a persisted HistoryEntry.Text.
const HistoryMaxTextLength = 4000

// HistoryRingCap bounds the number of entries retained per (namespace, session).
const HistoryRingCap = 500

// KVState is one namespaced key/value row: cwd store, migration markers,
// thread-id cache.
type KVState struct {
	Namespace string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// ModelConfig is one opaque model parameter, keyed by agent id (spec.md
// SPEC_FULL §3: "ModelConfig row").
type ModelConfig struct {
	AgentID   string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Attachment records one image persisted from a prompt frame (spec.md
// SPEC_FULL §3: "Attachment row").
type Attachment struct {
	ID           string
	SessionID    string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	StoredPath   string
	CreatedAt    time.Time
}
