package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"github.com/Andy963/ads-sub001/internal/db"
	"github.com/Andy963/ads-sub001/internal/orchestrator"
	"github.com/Andy963/ads-sub001/internal/store"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	writer, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	reader, err := db.OpenSQLiteReader(dbPath)
	require.NoError(t, err)
	pool := db.NewPool(sqlx.NewDb(writer, "sqlite3"), sqlx.NewDb(reader, "sqlite3"))
	t.Cleanup(func() { _ = pool.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx, pool.Writer(), "sqlite3"))
	return store.New(pool, "sqlite3")
}

func waitForTaskStatus(t *testing.T, st *store.Store, taskID, want string, timeout time.Duration) *store.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := st.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %q", taskID, want)
	return nil
}

func TestSchedulerClaimsAndCompletesTask(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mock := adapter.NewMockAdapter("claude", "Claude", []adapter.ScriptedEvent{
		{Phase: adapter.PhaseDelta, Text: "working..."},
		{Phase: adapter.PhaseDone, Output: "all done"},
	})
	orch := orchestrator.New(mock)
	sched := New(st, orch, logger.Default(), Config{})

	task, err := st.CreateTask(ctx, store.CreateTaskInput{Prompt: "do the thing"}, time.Now())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sched.Run(runCtx)
	sched.Start()

	done := waitForTaskStatus(t, st, task.ID, store.TaskStatusCompleted, 2*time.Second)
	require.Equal(t, "all done", done.Result)
}

func TestSchedulerEnforcesSingleActiveTask(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mock := adapter.NewMockAdapter("claude", "Claude", []adapter.ScriptedEvent{
		{Phase: adapter.PhaseDone, Output: "ok"},
	})
	orch := orchestrator.New(mock)
	sched := New(st, orch, logger.Default(), Config{})

	t1, err := st.CreateTask(ctx, store.CreateTaskInput{Prompt: "first"}, time.Now())
	require.NoError(t, err)
	t2, err := st.CreateTask(ctx, store.CreateTaskInput{Prompt: "second"}, time.Now())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sched.Run(runCtx)
	sched.Start()

	waitForTaskStatus(t, st, t1.ID, store.TaskStatusCompleted, 2*time.Second)
	waitForTaskStatus(t, st, t2.ID, store.TaskStatusCompleted, 2*time.Second)
}

func TestSchedulerRetriesFailedTaskWithinBudget(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mock := adapter.NewMockAdapter("claude", "Claude", []adapter.ScriptedEvent{
		{Phase: adapter.PhaseError, Err: errBoom},
	})
	orch := orchestrator.New(mock)
	sched := New(st, orch, logger.Default(), Config{})

	task, err := st.CreateTask(ctx, store.CreateTaskInput{Prompt: "flaky", MaxRetries: 1}, time.Now())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sched.Run(runCtx)
	sched.Start()

	// Retried in place back to pending with retryCount incremented.
	deadline := time.Now().Add(2 * time.Second)
	var latest *store.Task
	for time.Now().Before(deadline) {
		latest, err = st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		if latest.RetryCount > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, latest)
	require.Equal(t, 1, latest.RetryCount)
}
