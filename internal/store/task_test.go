package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Andy963/ads-sub001/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	writer, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	reader, err := db.OpenSQLiteReader(dbPath)
	require.NoError(t, err)
	pool := db.NewPool(sqlx.NewDb(writer, "sqlite3"), sqlx.NewDb(reader, "sqlite3"))
	t.Cleanup(func() { _ = pool.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, pool.Writer(), "sqlite3"))
	return New(pool, "sqlite3")
}

func TestCreateTaskDerivesTitleAndQueueOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, CreateTaskInput{Prompt: "fix the flaky test\nmore detail"}, now)
	require.NoError(t, err)
	require.Equal(t, "fix the flaky test", task.Title)
	require.Equal(t, TaskStatusPending, task.Status)

	_, err = s.CreateTask(ctx, CreateTaskInput{Prompt: ""}, now)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
}

func TestClaimNextPendingTaskOrdersByQueueCreatedID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t1, err := s.CreateTask(ctx, CreateTaskInput{Prompt: "t1"}, now)
	require.NoError(t, err)
	t2, err := s.CreateTask(ctx, CreateTaskInput{Prompt: "t2"}, now.Add(time.Second))
	require.NoError(t, err)
	t3, err := s.CreateTask(ctx, CreateTaskInput{Prompt: "t3"}, now.Add(2*time.Second))
	require.NoError(t, err)

	require.NoError(t, s.ReorderPendingTasks(ctx, []string{t3.ID, t1.ID}))

	claimed1, err := s.ClaimNextPendingTask(ctx, now)
	require.NoError(t, err)
	require.Equal(t, t3.ID, claimed1.ID)
	require.Equal(t, TaskStatusPlanning, claimed1.Status)

	// Only one task may be active at a time: finish it before claiming the next.
	require.NoError(t, s.UpdateTaskStatus(ctx, claimed1.ID, TaskStatusCompleted, now, "done", ""))

	claimed2, err := s.ClaimNextPendingTask(ctx, now)
	require.NoError(t, err)
	require.Equal(t, t1.ID, claimed2.ID)
	require.NoError(t, s.UpdateTaskStatus(ctx, claimed2.ID, TaskStatusCompleted, now, "done", ""))

	claimed3, err := s.ClaimNextPendingTask(ctx, now)
	require.NoError(t, err)
	require.Equal(t, t2.ID, claimed3.ID)

	none, err := s.ClaimNextPendingTask(ctx, now)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestMarkPromptInjectedIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, CreateTaskInput{Prompt: "hello"}, now)
	require.NoError(t, err)

	first, err := s.MarkPromptInjected(ctx, task.ID, now)
	require.NoError(t, err)
	require.True(t, first)

	second, err := s.MarkPromptInjected(ctx, task.ID, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, second)

	reloaded, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PromptInjectedAt)
	require.WithinDuration(t, now, *reloaded.PromptInjectedAt, time.Second)
}

func TestReorderPendingTasksPreservesUnlistedRelativeOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		task, err := s.CreateTask(ctx, CreateTaskInput{Prompt: "p"}, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	require.NoError(t, s.ReorderPendingTasks(ctx, []string{ids[3], ids[0]}))

	pending, err := s.ListPendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	require.Equal(t, ids[3], pending[0].ID)
	require.Equal(t, ids[0], pending[1].ID)
	// Unlisted ids[1], ids[2], ids[4] keep their prior relative order.
	require.Equal(t, ids[1], pending[2].ID)
	require.Equal(t, ids[2], pending[3].ID)
	require.Equal(t, ids[4], pending[4].ID)
}

func TestHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_, err := s.AddHistoryEntry(ctx, HistoryEntry{
			Namespace: "ns", SessionID: "sess-1", Role: HistoryRoleUser, Text: "entry",
		}, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	entries, err := s.GetHistory(ctx, "ns", "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.Equal(t, "entry", e.Text)
	}
}

func TestRetryTaskFailsWhenBudgetExhausted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, CreateTaskInput{Prompt: "p", MaxRetries: 1}, now)
	require.NoError(t, err)
	claimed, err := s.ClaimNextPendingTask(ctx, now)
	require.NoError(t, err)
	require.Equal(t, task.ID, claimed.ID)
	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, TaskStatusFailed, now, "", "boom"))

	require.NoError(t, s.RetryTask(ctx, task.ID, now))
	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, TaskStatusFailed, now, "", "boom again"))

	err = s.RetryTask(ctx, task.ID, now)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConstraint)
}
