package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sh1vu7/secreteshare/internal/scheduler"
)

const taskColumns = `task_key, kind, run_at, share_id, chat_id, message_id, attempts, last_error, created_at`

func scanTask(row rowScanner) (scheduler.Task, error) {
	var (
		t         scheduler.Task
		runAt     int64
		createdAt int64
		shareID   sql.NullString
		chatID    sql.NullInt64
		messageID sql.NullInt64
		lastError sql.NullString
	)
	if err := row.Scan(&t.Key, &t.Kind, &runAt, &shareID, &chatID, &messageID, &t.Attempts, &lastError, &createdAt); err != nil {
		return scheduler.Task{}, err
	}
	t.RunAt = fromMillis(runAt)
	t.CreatedAt = fromMillis(createdAt)
	t.ShareID = shareID.String
	t.ChatID = chatID.Int64
	t.MessageID = messageID.Int64
	t.LastError = lastError.String
	return t, nil
}

// UpsertTask schedules t, replacing any pending task with the same key.
// A replaced task starts over with zero attempts.
func (s *Store) UpsertTask(ctx context.Context, t scheduler.Task) error {
	_, err := s.exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?)
		ON CONFLICT(task_key) DO UPDATE SET
			kind = excluded.kind,
			run_at = excluded.run_at,
			share_id = excluded.share_id,
			chat_id = excluded.chat_id,
			message_id = excluded.message_id,
			attempts = 0,
			last_error = NULL
	`,
		t.Key, string(t.Kind), millis(t.RunAt), nullString(t.ShareID),
		sql.NullInt64{Int64: t.ChatID, Valid: t.Kind == scheduler.KindDeleteMessage},
		sql.NullInt64{Int64: t.MessageID, Valid: t.Kind == scheduler.KindDeleteMessage},
		millis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// DeleteTask removes the task with key. Returns false if it did not exist.
func (s *Store) DeleteTask(ctx context.Context, key string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM tasks WHERE task_key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return applied(res)
}

// CompleteTask removes the task only if it is still scheduled for runAt.
// A task re-scheduled while it was running survives.
func (s *Store) CompleteTask(ctx context.Context, key string, runAt time.Time) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM tasks WHERE task_key = ? AND run_at = ?`, key, millis(runAt))
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	return applied(res)
}

// RetryTask moves a failed task to nextRunAt, recording the attempt.
// Like CompleteTask it only applies while the task is still at prevRunAt.
func (s *Store) RetryTask(ctx context.Context, key string, prevRunAt, nextRunAt time.Time, attempts int, lastErr string) (bool, error) {
	res, err := s.exec(ctx, `
		UPDATE tasks SET run_at = ?, attempts = ?, last_error = ?
		WHERE task_key = ? AND run_at = ?
	`, millis(nextRunAt), attempts, nullString(lastErr), key, millis(prevRunAt))
	if err != nil {
		return false, fmt.Errorf("retry task: %w", err)
	}
	return applied(res)
}

// DueTasks returns up to limit tasks with run_at at or before now.
//
// Ordered by run_at, then kind descending so that an expiry runs before a
// message deletion scheduled for the same instant, then key.
func (s *Store) DueTasks(ctx context.Context, now time.Time, limit int) ([]scheduler.Task, error) {
	rows, err := s.query(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE run_at <= ?
		ORDER BY run_at ASC, kind DESC, task_key ASC
		LIMIT ?`, millis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListTasks returns every pending task ordered by run_at.
func (s *Store) ListTasks(ctx context.Context) ([]scheduler.Task, error) {
	rows, err := s.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY run_at ASC, task_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// GetTask returns the task with key, or scheduler.ErrTaskNotFound.
func (s *Store) GetTask(ctx context.Context, key string) (scheduler.Task, error) {
	t, err := scanTask(s.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return scheduler.Task{}, scheduler.ErrTaskNotFound
	}
	if err != nil {
		return scheduler.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]scheduler.Task, error) {
	defer rows.Close()

	var out []scheduler.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}
