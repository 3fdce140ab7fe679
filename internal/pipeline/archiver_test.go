package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

type fakeBlobArchiver struct {
	runs   atomic.Int64
	cutoff atomic.Value
	err    error
}

func (f *fakeBlobArchiver) ArchiveMatches(_ context.Context, before time.Time) (int64, error) {
	f.runs.Add(1)
	f.cutoff.Store(before)
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func TestRunUsesRetentionCutoff(t *testing.T) {
	blob := &fakeBlobArchiver{}
	arch := NewArchiver(blob, 90, slog.Default())

	require.NoError(t, arch.Run(context.Background()))

	require.Equal(t, int64(1), blob.runs.Load())
	cutoff := blob.cutoff.Load().(time.Time)
	expected := time.Now().UTC().Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, expected, cutoff, time.Minute)
}

type fakeLockManager struct {
	held     bool
	acquires atomic.Int64
	unlocks  atomic.Int64
}

func (f *fakeLockManager) Acquire(context.Context, string, time.Duration) (func(), error) {
	f.acquires.Add(1)
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() { f.unlocks.Add(1) }, nil
}

func TestRunAcquiresAndReleasesLock(t *testing.T) {
	blob := &fakeBlobArchiver{}
	locks := &fakeLockManager{}
	arch := NewArchiver(blob, 30, slog.Default()).WithLock(locks)

	require.NoError(t, arch.Run(context.Background()))

	assert.Equal(t, int64(1), locks.acquires.Load())
	assert.Equal(t, int64(1), locks.unlocks.Load())
	assert.Equal(t, int64(1), blob.runs.Load())
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	blob := &fakeBlobArchiver{}
	locks := &fakeLockManager{held: true}
	arch := NewArchiver(blob, 30, slog.Default()).WithLock(locks)

	require.NoError(t, arch.Run(context.Background()))

	assert.Equal(t, int64(0), blob.runs.Load())
}

func TestRunPropagatesArchiveError(t *testing.T) {
	blob := &fakeBlobArchiver{err: errors.New("bucket gone")}
	arch := NewArchiver(blob, 30, slog.Default())

	err := arch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}

func TestRunLoopTriggerForcesRun(t *testing.T) {
	blob := &fakeBlobArchiver{}
	arch := NewArchiver(blob, 7, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- arch.RunLoop(ctx, time.Hour, trigger)
	}()

	trigger <- struct{}{}
	assert.Eventually(t, func() bool { return blob.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCron(t *testing.T) {
	c, err := parseCron("0 3 1 * *")
	require.NoError(t, err)

	assert.True(t, c.matchesTime(time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)))
}

func TestParseCronRejectsBadInput(t *testing.T) {
	_, err := parseCron("0 3 1 *")
	assert.Error(t, err)

	_, err = parseCron("x 3 1 * *")
	assert.Error(t, err)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)

	next, err := nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC), next)

	// List fields match any listed value.
	next, err = nextCronTime("0,30 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC), next)
}
