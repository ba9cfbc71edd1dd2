package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1vu7/secreteshare/internal/scheduler"
)

func TestUpsertTask_ReplacesByKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	task := scheduler.ExpireShare("share-1", testNow.Add(time.Hour))
	task.CreatedAt = testNow
	require.NoError(t, s.UpsertTask(ctx, task))

	later := task
	later.RunAt = testNow.Add(2 * time.Hour)
	require.NoError(t, s.UpsertTask(ctx, later))

	all, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "same key must not duplicate")
	assert.True(t, all[0].RunAt.Equal(later.RunAt))
	assert.Equal(t, "share-1", all[0].ShareID)
}

func TestUpsertTask_ResetsAttempts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	task := scheduler.DeleteMessage(-100123, 55, "share-1", testNow)
	task.CreatedAt = testNow
	require.NoError(t, s.UpsertTask(ctx, task))

	ok, err := s.RetryTask(ctx, task.Key, testNow, testNow.Add(time.Minute), 2, "flood wait")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetTask(ctx, task.Key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "flood wait", got.LastError)
	assert.Equal(t, int64(-100123), got.ChatID)
	assert.Equal(t, int64(55), got.MessageID)

	require.NoError(t, s.UpsertTask(ctx, task))
	got, err = s.GetTask(ctx, task.Key)
	require.NoError(t, err)
	assert.Zero(t, got.Attempts)
	assert.Empty(t, got.LastError)
}

func TestDeleteTask_MissingIsNoop(t *testing.T) {
	s := createTestStore(t)

	ok, err := s.DeleteTask(context.Background(), "exp_share_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompleteTask_SkipsRescheduled(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	task := scheduler.ExpireShare("share-1", testNow)
	task.CreatedAt = testNow
	require.NoError(t, s.UpsertTask(ctx, task))

	moved := task
	moved.RunAt = testNow.Add(time.Hour)
	require.NoError(t, s.UpsertTask(ctx, moved))

	ok, err := s.CompleteTask(ctx, task.Key, task.RunAt)
	require.NoError(t, err)
	assert.False(t, ok, "the re-scheduled run must survive")

	ok, err = s.CompleteTask(ctx, task.Key, moved.RunAt)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.GetTask(ctx, task.Key)
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)
}

func TestDueTasks_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tasks := []scheduler.Task{
		scheduler.DeleteMessage(1, 2, "share-1", testNow),
		scheduler.ExpireShare("share-1", testNow),
		scheduler.ExpireShare("share-0", testNow.Add(-time.Minute)),
		scheduler.ExpireShare("share-future", testNow.Add(time.Minute)),
	}
	for _, task := range tasks {
		task.CreatedAt = testNow
		require.NoError(t, s.UpsertTask(ctx, task))
	}

	due, err := s.DueTasks(ctx, testNow, 10)
	require.NoError(t, err)

	keys := make([]string, len(due))
	for i, task := range due {
		keys[i] = task.Key
	}
	assert.Equal(t, []string{
		"exp_share_share-0",
		"exp_share_share-1",
		"del_msg_1_2_share-1",
	}, keys)

	limited, err := s.DueTasks(ctx, testNow, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
