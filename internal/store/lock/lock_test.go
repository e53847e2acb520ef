package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	c := NewCoordinator(t.TempDir())

	l, err := c.TryAcquire()
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, os.Getpid(), l.Holder().PID)
	assert.NotEmpty(t, l.Holder().Token)

	status, err := c.Status()
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, l.Holder().Token, status.Token)

	require.NoError(t, l.Release())
	status, err = c.Status()
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestTryAcquireHeldByLiveProcess(t *testing.T) {
	c := NewCoordinator(t.TempDir())
	l, err := c.TryAcquire()
	require.NoError(t, err)
	require.NotNil(t, l)
	defer func() { _ = l.Release() }()

	// Our own pid is alive, so a second claim must fail without error.
	second, err := c.TryAcquire()
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestAcquireTimesOut(t *testing.T) {
	c := NewCoordinator(t.TempDir())
	l, err := c.TryAcquire()
	require.NoError(t, err)
	defer func() { _ = l.Release() }()

	start := time.Now()
	_, err = c.Acquire(150 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	c := NewCoordinator(t.TempDir())
	l, err := c.TryAcquire()
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = l.Release()
	}()

	l2, err := c.Acquire(2 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, l2)
	require.NoError(t, l2.Release())
}

func writeHolder(t *testing.T, root string, h Holder) {
	t.Helper()
	data, err := json.Marshal(h)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, lockFilename), data, 0o644))
}

func TestStaleLockIsReclaimed(t *testing.T) {
	root := t.TempDir()
	c := NewCoordinator(root)

	// Pid from a process that cannot exist.
	writeHolder(t, root, Holder{
		PID:        1 << 30,
		Hostname:   "ghost",
		Token:      "dead-token",
		AcquiredAt: time.Now().Add(-time.Hour),
	})

	l, err := c.TryAcquire()
	require.NoError(t, err)
	require.NotNil(t, l, "dead holder must be reclaimed")
	assert.NotEqual(t, "dead-token", l.Holder().Token)
	require.NoError(t, l.Release())
}

func TestUnreadableLockFileTreatedAsHeld(t *testing.T) {
	root := t.TempDir()
	c := NewCoordinator(root)
	require.NoError(t, os.WriteFile(filepath.Join(root, lockFilename), []byte("garbage"), 0o644))

	l, err := c.TryAcquire()
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestReleaseAfterReclaimReturnsNotHeld(t *testing.T) {
	root := t.TempDir()
	c := NewCoordinator(root)

	l, err := c.TryAcquire()
	require.NoError(t, err)

	// Simulate another process reclaiming: rewrite with a different token.
	writeHolder(t, root, Holder{PID: os.Getpid(), Token: "someone-else", AcquiredAt: time.Now()})

	assert.ErrorIs(t, l.Release(), ErrNotHeld)
}

func TestReleaseTwice(t *testing.T) {
	c := NewCoordinator(t.TempDir())
	l, err := c.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, l.Release())
	assert.ErrorIs(t, l.Release(), ErrNotHeld)
}

func TestBreakRemovesLock(t *testing.T) {
	root := t.TempDir()
	c := NewCoordinator(root)
	l, err := c.TryAcquire()
	require.NoError(t, err)

	removed, err := c.Break()
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, l.Holder().Token, removed.Token)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestBreakUnheld(t *testing.T) {
	c := NewCoordinator(t.TempDir())
	removed, err := c.Break()
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestHolderStale(t *testing.T) {
	assert.False(t, Holder{PID: os.Getpid()}.Stale())
	assert.True(t, Holder{PID: 1 << 30}.Stale())
	assert.True(t, Holder{PID: 0}.Stale())
}
