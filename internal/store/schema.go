package store

import (
	"context"
	"fmt"

	"github.com/Andy963/ads-sub001/internal/db/dialect"
	"github.com/jmoiron/sqlx"
)

// schemaStatements creates every table idempotently. Column types are SQLite
// native; the Postgres path (ADS_DATABASE_DRIVER=postgres) runs the same DDL
// through pgx's SQLite-compatible type affinities, following the teacher's
// single-migration-set-per-driver split.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		prompt TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		model_params TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		queue_order INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		queued_at DATETIME,
		started_at DATETIME,
		completed_at DATETIME,
		prompt_injected_at DATETIME,
		archived_at DATETIME,
		parent_task_id TEXT,
		thread_id TEXT,
		result TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_queue_order ON tasks(queue_order)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id)`,

	`CREATE TABLE IF NOT EXISTS plan_steps (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		step_number INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		UNIQUE(task_id, step_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plan_steps_task ON plan_steps(task_id)`,

	`CREATE TABLE IF NOT EXISTS task_messages (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		plan_step_id TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT '',
		model_used TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_messages_task ON task_messages(task_id)`,

	`CREATE TABLE IF NOT EXISTS task_contexts (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		context_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_contexts_task ON task_contexts(task_id)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		task_id TEXT,
		title TEXT NOT NULL DEFAULT '',
		total_tokens INTEGER NOT NULL DEFAULT 0,
		last_model TEXT NOT NULL DEFAULT '',
		model_response_ids TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		task_id TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT '',
		model_used TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conv_messages_conv ON conversation_messages(conversation_id)`,

	`CREATE TABLE IF NOT EXISTS history_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		ts DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_ns_session ON history_entries(namespace, session_id, ts)`,

	`CREATE TABLE IF NOT EXISTS kv_state (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (namespace, key)
	)`,

	`CREATE TABLE IF NOT EXISTS model_configs (
		agent_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (agent_id, key)
	)`,

	`CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		original_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		stored_path TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`,
}

// Migrate applies every schema statement idempotently and records completion
// in schema_migrations, grounded on the teacher's runMigrations pattern
// (task/repository/sqlite/base.go): CREATE TABLE IF NOT EXISTS plus a
// recorded version marker so re-opening the database is a no-op.
func Migrate(ctx context.Context, writer *sqlx.DB, driver string) error {
	for _, stmt := range schemaStatements {
		if _, err := writer.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", &StorageError{Op: "migrate", Err: err})
		}
	}
	const version = "v1"
	now := dialect.Now(driver)
	insert := fmt.Sprintf(
		"INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, %s)", now,
	)
	if dialect.IsPostgres(driver) {
		insert = fmt.Sprintf(
			"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, %s) ON CONFLICT (version) DO NOTHING",
			now,
		)
	}
	if _, err := writer.ExecContext(ctx, writer.Rebind(insert), version); err != nil {
		return fmt.Errorf("store: record migration: %w", &StorageError{Op: "migrate", Err: err})
	}
	return nil
}
