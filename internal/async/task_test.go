package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_RunsInBackground(t *testing.T) {
	// Given: a task blocked on a channel
	release := make(chan struct{})
	var ran atomic.Bool
	task := Start(context.Background(), func(ctx context.Context, p *Progress) (int, error) {
		<-release
		ran.Store(true)
		return 42, nil
	})

	// Then: Start returns before the work finishes
	assert.True(t, task.Running())
	assert.Equal(t, string(PassRunning), task.Progress().Status)

	// When: the work is released
	close(release)
	got, err := task.Wait()

	// Then: the result is returned and the task is ready
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.True(t, ran.Load())
	assert.False(t, task.Running())
	assert.Equal(t, string(PassReady), task.Progress().Status)
}

func TestTask_IDIsUUID(t *testing.T) {
	a := Start(context.Background(), func(context.Context, *Progress) (struct{}, error) { return struct{}{}, nil })
	b := Start(context.Background(), func(context.Context, *Progress) (struct{}, error) { return struct{}{}, nil })

	_, err := uuid.Parse(a.ID())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestTask_ReportsProgress(t *testing.T) {
	step := make(chan struct{})
	release := make(chan struct{})
	task := Start(context.Background(), func(ctx context.Context, p *Progress) (int, error) {
		p.Observe("chunking", 4, 10)
		close(step)
		<-release
		return 0, nil
	})

	<-step
	snap := task.Progress()
	assert.Equal(t, "chunking", snap.Stage)
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, 4, snap.Current)
	assert.InDelta(t, 40.0, snap.ProgressPct, 0.01)

	close(release)
	_, err := task.Wait()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, task.Progress().ProgressPct, 0.01)
}

func TestTask_Cancel(t *testing.T) {
	// Given: a task that runs until cancelled
	task := Start(context.Background(), func(ctx context.Context, p *Progress) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	// When: cancelling it
	task.Cancel()
	_, err := task.Wait()

	// Then: it stops with a cancelled status
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, string(PassCancelled), task.Progress().Status)
}

func TestTask_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Start(ctx, func(ctx context.Context, p *Progress) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	cancel()

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not stop after parent cancellation")
	}
}

func TestTask_ErrorSetsProgress(t *testing.T) {
	task := Start(context.Background(), func(ctx context.Context, p *Progress) (int, error) {
		return 0, errors.New("embedding failed: connection refused")
	})

	_, err := task.Wait()

	require.Error(t, err)
	snap := task.Progress()
	assert.Equal(t, string(PassFailed), snap.Status)
	assert.Equal(t, "embedding failed: connection refused", snap.Error)
}

func TestTask_WaitContextTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	task := Start(context.Background(), func(ctx context.Context, p *Progress) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := task.WaitContext(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, task.Running())
}
