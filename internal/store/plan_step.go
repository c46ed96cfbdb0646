package store

import (
	"context"
	"database/sql"
	"time"
)

type planStepRow struct {
	ID          string       `db:"id"`
	TaskID      string       `db:"task_id"`
	StepNumber  int          `db:"step_number"`
	Title       string       `db:"title"`
	Description string       `db:"description"`
	Status      string       `db:"status"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

func (r planStepRow) toPlanStep() *PlanStep {
	p := &PlanStep{
		ID:          r.ID,
		TaskID:      r.TaskID,
		StepNumber:  r.StepNumber,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
	}
	if r.StartedAt.Valid {
		p.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		p.CompletedAt = &r.CompletedAt.Time
	}
	return p
}

// ReplacePlan deletes a task's existing steps and inserts the replacement
// set inside one transaction, nulling any message step pointers first so no
// dangling reference survives the replan (spec.md §3 PlanStep lifecycle).
func (s *Store) ReplacePlan(ctx context.Context, taskID string, steps []PlanStep) ([]*PlanStep, error) {
	tx, err := s.pool.Writer().BeginTxx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "replacePlan:begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	nullifyQuery := tx.Rebind(
		"UPDATE task_messages SET plan_step_id = NULL WHERE plan_step_id IN (SELECT id FROM plan_steps WHERE task_id = ?)")
	if _, err := tx.ExecContext(ctx, nullifyQuery, taskID); err != nil {
		return nil, &StorageError{Op: "replacePlan:nullify", Err: err}
	}

	deleteQuery := tx.Rebind("DELETE FROM plan_steps WHERE task_id = ?")
	if _, err := tx.ExecContext(ctx, deleteQuery, taskID); err != nil {
		return nil, &StorageError{Op: "replacePlan:delete", Err: err}
	}

	insertQuery := tx.Rebind(`INSERT INTO plan_steps
		(id, task_id, step_number, title, description, status) VALUES (?, ?, ?, ?, ?, ?)`)
	out := make([]*PlanStep, 0, len(steps))
	for _, step := range steps {
		id := newID("step")
		status := step.Status
		if status == "" {
			status = PlanStepStatusPending
		}
		if _, err := tx.ExecContext(ctx, insertQuery, id, taskID, step.StepNumber, step.Title, step.Description, status); err != nil {
			return nil, &ConstraintError{Op: "replacePlan:insert", Err: err}
		}
		out = append(out, &PlanStep{ID: id, TaskID: taskID, StepNumber: step.StepNumber, Title: step.Title, Description: step.Description, Status: status})
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "replacePlan:commit", Err: err}
	}
	return out, nil
}

// ListPlanSteps returns a task's steps ordered by stepNumber.
func (s *Store) ListPlanSteps(ctx context.Context, taskID string) ([]*PlanStep, error) {
	var rows []planStepRow
	query := s.pool.Reader().Rebind("SELECT * FROM plan_steps WHERE task_id = ? ORDER BY step_number ASC")
	if err := s.pool.Reader().SelectContext(ctx, &rows, query, taskID); err != nil {
		return nil, &StorageError{Op: "listPlanSteps", Err: err}
	}
	out := make([]*PlanStep, len(rows))
	for i, r := range rows {
		out[i] = r.toPlanStep()
	}
	return out, nil
}

// UpdatePlanStepStatus transitions one step's status and timestamps.
func (s *Store) UpdatePlanStepStatus(ctx context.Context, id, status string, now time.Time) error {
	var startedAt, completedAt sql.NullTime
	switch status {
	case PlanStepStatusRunning:
		startedAt = sql.NullTime{Time: now, Valid: true}
	case PlanStepStatusCompleted, PlanStepStatusSkipped, PlanStepStatusFailed:
		completedAt = sql.NullTime{Time: now, Valid: true}
	}
	query := s.pool.Writer().Rebind(`UPDATE plan_steps SET status = ?,
		started_at = COALESCE(started_at, ?), completed_at = COALESCE(?, completed_at) WHERE id = ?`)
	_, err := s.pool.Writer().ExecContext(ctx, query, status, startedAt, completedAt, id)
	if err != nil {
		return &StorageError{Op: "updatePlanStepStatus", Err: err}
	}
	return nil
}
