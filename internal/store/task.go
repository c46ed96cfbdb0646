package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Andy963/ads-sub001/internal/common/stringutil"
)

// taskRow is the flat scan target for the tasks table.
type taskRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	Prompt           string         `db:"prompt"`
	Model            string         `db:"model"`
	ModelParams      string         `db:"model_params"`
	Status           string         `db:"status"`
	Priority         int            `db:"priority"`
	QueueOrder       int64          `db:"queue_order"`
	CreatedAt        time.Time      `db:"created_at"`
	QueuedAt         sql.NullTime   `db:"queued_at"`
	StartedAt        sql.NullTime   `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	PromptInjectedAt sql.NullTime   `db:"prompt_injected_at"`
	ArchivedAt       sql.NullTime   `db:"archived_at"`
	ParentTaskID     sql.NullString `db:"parent_task_id"`
	ThreadID         sql.NullString `db:"thread_id"`
	Result           string         `db:"result"`
	Error            string         `db:"error"`
	RetryCount       int            `db:"retry_count"`
	MaxRetries       int            `db:"max_retries"`
	CreatedBy        string         `db:"created_by"`
}

func (r taskRow) toTask() *Task {
	t := &Task{
		ID:         r.ID,
		Title:      r.Title,
		Prompt:     r.Prompt,
		Model:      r.Model,
		Status:     r.Status,
		Priority:   r.Priority,
		QueueOrder: r.QueueOrder,
		CreatedAt:  r.CreatedAt,
		Result:     r.Result,
		Error:      r.Error,
		RetryCount: r.RetryCount,
		MaxRetries: r.MaxRetries,
		CreatedBy:  r.CreatedBy,
	}
	_ = json.Unmarshal([]byte(r.ModelParams), &t.ModelParams)
	if r.QueuedAt.Valid {
		t.QueuedAt = &r.QueuedAt.Time
	}
	if r.StartedAt.Valid {
		t.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		t.CompletedAt = &r.CompletedAt.Time
	}
	if r.PromptInjectedAt.Valid {
		t.PromptInjectedAt = &r.PromptInjectedAt.Time
	}
	if r.ArchivedAt.Valid {
		t.ArchivedAt = &r.ArchivedAt.Time
	}
	if r.ParentTaskID.Valid {
		t.ParentTaskID = &r.ParentTaskID.String
	}
	if r.ThreadID.Valid {
		t.ThreadID = &r.ThreadID.String
	}
	return t
}

// CreateTaskInput collects the fields a caller may supply to createTask.
type CreateTaskInput struct {
	Title       string
	Prompt      string
	Model       string
	ModelParams map[string]string
	Priority    int
	ParentTaskID *string
	ThreadID    *string
	CreatedBy   string
	MaxRetries  int
	Status      string // defaults to TaskStatusPending
	Queued      bool   // when true, sets QueuedAt and Status=TaskStatusQueued if Status unset
}

func defaultTitleFromPrompt(prompt string) string {
	line := prompt
	for i, r := range prompt {
		if r == '\n' {
			line = prompt[:i]
			break
		}
	}
	return stringutil.TruncateStringWithEllipsis(line, 32)
}

// CreateTask validates and inserts a new task (spec.md §4.1 createTask).
func (s *Store) CreateTask(ctx context.Context, in CreateTaskInput, now time.Time) (*Task, error) {
	if in.Prompt == "" {
		return nil, &ValidationError{Field: "prompt", Message: "must not be empty"}
	}
	title := in.Title
	if title == "" {
		title = defaultTitleFromPrompt(in.Prompt)
	}
	status := in.Status
	var queuedAt sql.NullTime
	if status == "" {
		if in.Queued {
			status = TaskStatusQueued
			queuedAt = sql.NullTime{Time: now, Valid: true}
		} else {
			status = TaskStatusPending
		}
	}

	var maxOrder sql.NullInt64
	if err := s.pool.Reader().GetContext(ctx, &maxOrder, "SELECT MAX(queue_order) FROM tasks"); err != nil {
		return nil, &StorageError{Op: "createTask:maxOrder", Err: err}
	}
	queueOrder := now.UnixNano()
	if maxOrder.Valid {
		queueOrder = maxOrder.Int64 + 1
	}

	params, err := json.Marshal(in.ModelParams)
	if err != nil {
		return nil, &ValidationError{Field: "modelParams", Message: err.Error()}
	}

	id := newID("task")
	row := taskRow{
		ID:          id,
		Title:       title,
		Prompt:      in.Prompt,
		Model:       in.Model,
		ModelParams: string(params),
		Status:      status,
		Priority:    in.Priority,
		QueueOrder:  queueOrder,
		CreatedAt:   now,
		QueuedAt:    queuedAt,
		CreatedBy:   in.CreatedBy,
		MaxRetries:  in.MaxRetries,
	}
	if in.ParentTaskID != nil {
		row.ParentTaskID = sql.NullString{String: *in.ParentTaskID, Valid: true}
	}
	if in.ThreadID != nil {
		row.ThreadID = sql.NullString{String: *in.ThreadID, Valid: true}
	}

	query := s.pool.Writer().Rebind(`INSERT INTO tasks
		(id, title, prompt, model, model_params, status, priority, queue_order,
		 created_at, queued_at, parent_task_id, thread_id, created_by, max_retries,
		 result, error, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', 0)`)
	_, err = s.pool.Writer().ExecContext(ctx, query,
		row.ID, row.Title, row.Prompt, row.Model, row.ModelParams, row.Status, row.Priority,
		row.QueueOrder, row.CreatedAt, row.QueuedAt, row.ParentTaskID, row.ThreadID,
		row.CreatedBy, row.MaxRetries,
	)
	if err != nil {
		return nil, &StorageError{Op: "createTask:insert", Err: err}
	}
	return row.toTask(), nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var row taskRow
	query := s.pool.Reader().Rebind("SELECT * FROM tasks WHERE id = ?")
	if err := s.pool.Reader().GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Kind: "task", ID: id}
		}
		return nil, &StorageError{Op: "getTask", Err: err}
	}
	return row.toTask(), nil
}

// ListPendingTasks returns pending tasks ordered by (queueOrder, createdAt, id).
func (s *Store) ListPendingTasks(ctx context.Context) ([]*Task, error) {
	var rows []taskRow
	query := s.pool.Reader().Rebind(
		"SELECT * FROM tasks WHERE status = ? ORDER BY queue_order ASC, created_at ASC, id ASC")
	if err := s.pool.Reader().SelectContext(ctx, &rows, query, TaskStatusPending); err != nil {
		return nil, &StorageError{Op: "listPendingTasks", Err: err}
	}
	out := make([]*Task, len(rows))
	for i, r := range rows {
		out[i] = r.toTask()
	}
	return out, nil
}

// ActiveTask returns the task currently in planning or running, if any,
// enforcing the spec's "at most one active task" invariant is the caller's
// job at the claim boundary; this is a read-only lookup for callers that
// need to check before creating new work.
func (s *Store) ActiveTask(ctx context.Context) (*Task, error) {
	var row taskRow
	query := s.pool.Reader().Rebind(
		"SELECT * FROM tasks WHERE status IN (?, ?) ORDER BY started_at ASC LIMIT 1")
	err := s.pool.Reader().GetContext(ctx, &row, query, TaskStatusPlanning, TaskStatusRunning)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "activeTask", Err: err}
	}
	return row.toTask(), nil
}

// ClaimNextPendingTask transitions the head-of-pending-order task to planning
// inside a single transaction, guaranteeing two concurrent callers cannot
// claim the same row (spec.md §4.1, §8 invariant on single active task).
func (s *Store) ClaimNextPendingTask(ctx context.Context, now time.Time) (*Task, error) {
	tx, err := s.pool.Writer().BeginTxx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "claimNextPendingTask:begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var row taskRow
	selectQuery := tx.Rebind(
		"SELECT * FROM tasks WHERE status = ? ORDER BY queue_order ASC, created_at ASC, id ASC LIMIT 1")
	err = tx.GetContext(ctx, &row, selectQuery, TaskStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "claimNextPendingTask:select", Err: err}
	}

	updateQuery := tx.Rebind(
		"UPDATE tasks SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ? AND status = ?")
	res, err := tx.ExecContext(ctx, updateQuery, TaskStatusPlanning, now, row.ID, TaskStatusPending)
	if err != nil {
		return nil, &StorageError{Op: "claimNextPendingTask:update", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Another caller claimed it between select and update; no row claimed.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "claimNextPendingTask:commit", Err: err}
	}

	row.Status = TaskStatusPlanning
	if !row.StartedAt.Valid {
		row.StartedAt = sql.NullTime{Time: now, Valid: true}
	}
	return row.toTask(), nil
}

// DequeueNextQueuedTask promotes the head-of-queue task to pending.
func (s *Store) DequeueNextQueuedTask(ctx context.Context, now time.Time) (*Task, error) {
	tx, err := s.pool.Writer().BeginTxx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "dequeueNextQueuedTask:begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var row taskRow
	selectQuery := tx.Rebind(
		"SELECT * FROM tasks WHERE status = ? ORDER BY queue_order ASC, created_at ASC, id ASC LIMIT 1")
	err = tx.GetContext(ctx, &row, selectQuery, TaskStatusQueued)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "dequeueNextQueuedTask:select", Err: err}
	}

	updateQuery := tx.Rebind("UPDATE tasks SET status = ? WHERE id = ? AND status = ?")
	res, err := tx.ExecContext(ctx, updateQuery, TaskStatusPending, row.ID, TaskStatusQueued)
	if err != nil {
		return nil, &StorageError{Op: "dequeueNextQueuedTask:update", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "dequeueNextQueuedTask:commit", Err: err}
	}
	row.Status = TaskStatusPending
	return row.toTask(), nil
}

// MovePendingTask swaps queueOrder with the adjacent pending task in the
// given direction; a no-op at the boundaries.
func (s *Store) MovePendingTask(ctx context.Context, id string, up bool) error {
	tasks, err := s.ListPendingTasks(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i, t := range tasks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &NotFoundError{Kind: "pending task", ID: id}
	}
	var other int
	if up {
		other = idx - 1
	} else {
		other = idx + 1
	}
	if other < 0 || other >= len(tasks) {
		return nil // boundary: no-op
	}

	tx, err := s.pool.Writer().BeginTxx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "movePendingTask:begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	a, b := tasks[idx], tasks[other]
	query := tx.Rebind("UPDATE tasks SET queue_order = ? WHERE id = ?")
	if _, err := tx.ExecContext(ctx, query, b.QueueOrder, a.ID); err != nil {
		return &StorageError{Op: "movePendingTask:swapA", Err: err}
	}
	if _, err := tx.ExecContext(ctx, query, a.QueueOrder, b.ID); err != nil {
		return &StorageError{Op: "movePendingTask:swapB", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "movePendingTask:commit", Err: err}
	}
	return nil
}

// ReorderPendingTasks accepts any subset (in the desired order) of the
// current pending ids and rewrites their queueOrder so they sort first, in
// that order, while leaving the relative order of unlisted pending tasks
// unchanged (spec.md §4.1, §8 reorder invariant).
func (s *Store) ReorderPendingTasks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tasks, err := s.ListPendingTasks(ctx)
	if err != nil {
		return err
	}
	listed := make(map[string]bool, len(ids))
	for _, id := range ids {
		listed[id] = true
	}

	// Assign the listed ids the lowest queueOrder values, in the order given,
	// then re-stamp the remaining tasks (in their prior relative order) above them.
	tx, err := s.pool.Writer().BeginTxx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "reorderPendingTasks:begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind("UPDATE tasks SET queue_order = ? WHERE id = ?")
	base := int64(0)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, base, id); err != nil {
			return &StorageError{Op: "reorderPendingTasks:listed", Err: err}
		}
		base++
	}
	for _, t := range tasks {
		if listed[t.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, base, t.ID); err != nil {
			return &StorageError{Op: "reorderPendingTasks:rest", Err: err}
		}
		base++
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "reorderPendingTasks:commit", Err: err}
	}
	return nil
}

// MarkPromptInjected write-once-assigns promptInjectedAt; subsequent calls
// return false without mutation (spec.md §8 idempotence property).
func (s *Store) MarkPromptInjected(ctx context.Context, id string, now time.Time) (bool, error) {
	query := s.pool.Writer().Rebind(
		"UPDATE tasks SET prompt_injected_at = ? WHERE id = ? AND prompt_injected_at IS NULL")
	res, err := s.pool.Writer().ExecContext(ctx, query, now, id)
	if err != nil {
		return false, &StorageError{Op: "markPromptInjected", Err: err}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateTaskStatus transitions a task's status and optionally stamps
// completedAt/result/error.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string, now time.Time, result, errMsg string) error {
	var completedAt sql.NullTime
	switch status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		completedAt = sql.NullTime{Time: now, Valid: true}
	}
	query := s.pool.Writer().Rebind(
		"UPDATE tasks SET status = ?, completed_at = COALESCE(?, completed_at), result = ?, error = ? WHERE id = ?")
	_, err := s.pool.Writer().ExecContext(ctx, query, status, completedAt, result, errMsg, id)
	if err != nil {
		return &StorageError{Op: "updateTaskStatus", Err: err}
	}
	return nil
}

// RetryTask resets a failed task to pending, increments retryCount, and
// preserves queueOrder at the tail. Fails when retryCount already equals
// maxRetries (spec.md §4.7).
func (s *Store) RetryTask(ctx context.Context, id string, now time.Time) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.RetryCount >= task.MaxRetries {
		return &ConstraintError{Op: "retryTask", Err: fmt.Errorf("retry budget exhausted (%d/%d)", task.RetryCount, task.MaxRetries)}
	}
	var maxOrder sql.NullInt64
	if err := s.pool.Reader().GetContext(ctx, &maxOrder, "SELECT MAX(queue_order) FROM tasks"); err != nil {
		return &StorageError{Op: "retryTask:maxOrder", Err: err}
	}
	tail := now.UnixNano()
	if maxOrder.Valid {
		tail = maxOrder.Int64 + 1
	}
	query := s.pool.Writer().Rebind(`UPDATE tasks SET status = ?, retry_count = retry_count + 1,
		error = '', completed_at = NULL, queue_order = ? WHERE id = ?`)
	_, err = s.pool.Writer().ExecContext(ctx, query, TaskStatusPending, tail, id)
	if err != nil {
		return &StorageError{Op: "retryTask:update", Err: err}
	}
	return nil
}

// CancelTask transitions an in-flight task to cancelled.
func (s *Store) CancelTask(ctx context.Context, id string, now time.Time) error {
	return s.UpdateTaskStatus(ctx, id, TaskStatusCancelled, now, "", "interrupted, output may be partial")
}

// PurgeArchivedCompletedTasksBatch deletes up to limit archived+completed
// tasks archived before `before`, detaching children first, and returns the
// ids deleted so a caller can garbage-collect any attachment storage keys.
func (s *Store) PurgeArchivedCompletedTasksBatch(ctx context.Context, before time.Time, limit int) ([]string, error) {
	tx, err := s.pool.Writer().BeginTxx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "purgeArchivedCompletedTasksBatch:begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var ids []string
	selectQuery := tx.Rebind(
		"SELECT id FROM tasks WHERE status = ? AND archived_at IS NOT NULL AND archived_at < ? LIMIT ?")
	if err := tx.SelectContext(ctx, &ids, selectQuery, TaskStatusCompleted, before, limit); err != nil {
		return nil, &StorageError{Op: "purgeArchivedCompletedTasksBatch:select", Err: err}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	detachQuery := tx.Rebind("UPDATE tasks SET parent_task_id = NULL WHERE parent_task_id = ?")
	deleteQuery := tx.Rebind("DELETE FROM tasks WHERE id = ?")
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, detachQuery, id); err != nil {
			return nil, &StorageError{Op: "purgeArchivedCompletedTasksBatch:detach", Err: err}
		}
		if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
			return nil, &StorageError{Op: "purgeArchivedCompletedTasksBatch:delete", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "purgeArchivedCompletedTasksBatch:commit", Err: err}
	}
	return ids, nil
}
