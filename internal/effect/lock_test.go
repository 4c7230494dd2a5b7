package effect

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLockBus struct {
	locked []bool
}

func (b *fakeLockBus) SetLockedHint(ctx context.Context, locked bool) error {
	b.locked = append(b.locked, locked)
	return nil
}

func TestLockApplyNextSpawnsAndSetsLockedHint(t *testing.T) {
	bus := &fakeLockBus{}
	l := NewLock(LockConfig{Command: "/bin/sh", Args: []string{"-c", "sleep 0.05"}}, bus, logrus.NewEntry(logrus.New()))

	require.NoError(t, l.ApplyNext(context.Background()))
	assert.True(t, l.Running())
	assert.Equal(t, []bool{true}, bus.locked)
}

func TestLockApplyNextIsIdempotentWhileRunning(t *testing.T) {
	bus := &fakeLockBus{}
	l := NewLock(LockConfig{Command: "/bin/sh", Args: []string{"-c", "sleep 0.2"}}, bus, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	require.NoError(t, l.ApplyNext(ctx))
	require.NoError(t, l.ApplyNext(ctx))
	assert.Equal(t, []bool{true}, bus.locked, "a second apply while running must not respawn")
}

func TestLockSupervisorClearsLockedHintOnExit(t *testing.T) {
	bus := &fakeLockBus{}
	l := NewLock(LockConfig{Command: "/bin/sh", Args: []string{"-c", "exit 0"}}, bus, logrus.NewEntry(logrus.New()))

	require.NoError(t, l.ApplyNext(context.Background()))
	assert.Eventually(t, func() bool { return !l.Running() }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(bus.locked) == 2 && bus.locked[1] == false
	}, time.Second, 5*time.Millisecond)
}

func TestLockRollbackOnlyDecrementsDepth(t *testing.T) {
	bus := &fakeLockBus{}
	l := NewLock(LockConfig{Command: "/bin/sh", Args: []string{"-c", "sleep 0.2"}}, bus, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	require.NoError(t, l.ApplyNext(ctx))
	require.NoError(t, l.RollbackOne(ctx))
	assert.Equal(t, 0, l.Depth())
	assert.True(t, l.Running(), "rollback must not touch the locker process")
	assert.False(t, l.IsRollbackable(0))
}

func TestLockWaitReadyFailsWithoutALocker(t *testing.T) {
	bus := &fakeLockBus{}
	l := NewLock(LockConfig{Command: "/bin/true"}, bus, logrus.NewEntry(logrus.New()))
	err := l.WaitReady(context.Background(), time.Millisecond)
	assert.Error(t, err)
}
