package sync

import (
	"context"
	"testing"
	"time"

	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func TestCanTransition(t *testing.T) {
	all := []types.SyncStatus{
		types.StatusPaused, types.StatusActive, types.StatusSyncing, types.StatusCompleted, types.StatusError,
	}
	allowed := map[[2]types.SyncStatus]bool{
		{types.StatusPaused, types.StatusActive}:     true,
		{types.StatusActive, types.StatusSyncing}:    true,
		{types.StatusActive, types.StatusPaused}:     true,
		{types.StatusSyncing, types.StatusCompleted}: true,
		{types.StatusSyncing, types.StatusError}:     true,
		{types.StatusSyncing, types.StatusPaused}:    true,
		{types.StatusCompleted, types.StatusActive}:  true,
		{types.StatusCompleted, types.StatusPaused}:  true,
		{types.StatusError, types.StatusActive}:      true,
		{types.StatusError, types.StatusPaused}:      true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]types.SyncStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestFolderLock_TryLockCoalesces(t *testing.T) {
	var locks folderLocks
	l := locks.get("f")
	assert.Same(t, l, locks.get("f"))

	mustTryLock(t, l, true)
	mustTryLock(t, l, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.lock(ctx))

	l.unlock()
	mustTryLock(t, l, true)
	l.unlock()
}

func TestFolderLock_LockFileExcludesOtherEngines(t *testing.T) {
	dir := t.TempDir()
	first := folderLocks{dir: dir}
	second := folderLocks{dir: dir}
	a, b := first.get("f"), second.get("f")

	mustTryLock(t, a, true)
	mustTryLock(t, b, false)
	assert.Empty(t, b.ch, "a failed file lock must release the in-process slot")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.lock(ctx), context.DeadlineExceeded)
	assert.Empty(t, b.ch)

	a.unlock()
	require.NoError(t, b.lock(context.Background()))
	mustTryLock(t, a, false)
	b.unlock()
}

func TestFolderLock_InterruptCancelsWorkerWait(t *testing.T) {
	var locks folderLocks
	l := locks.get("f")
	workers := semaphore.NewWeighted(1)
	require.True(t, workers.TryAcquire(1))

	errc := make(chan error, 1)
	go func() { errc <- l.acquireWorker(context.Background(), workers) }()

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.cancelWait != nil
	}, 5*time.Second, time.Millisecond)
	l.requestInterrupt()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, errInterrupted)
	case <-time.After(5 * time.Second):
		t.Fatal("worker wait ignored the interrupt")
	}
	workers.Release(1)
	assert.True(t, workers.TryAcquire(1), "an abandoned wait must not hold a slot")
}

func mustTryLock(t *testing.T, l *folderLock, want bool) {
	t.Helper()
	ok, err := l.tryLock()
	require.NoError(t, err)
	require.Equal(t, want, ok)
}

func TestAccountGate_QuiesceWaitsForPasses(t *testing.T) {
	var gates accountGates
	g := gates.get("acct")
	ctx := context.Background()

	require.NoError(t, g.enter(ctx))
	require.NoError(t, g.enter(ctx))

	done := make(chan func())
	go func() {
		release, err := g.quiesce(ctx)
		if err == nil {
			done <- release
		}
	}()

	g.leave()
	select {
	case <-done:
		t.Fatal("quiesce returned while a pass was inside")
	case <-time.After(20 * time.Millisecond):
	}
	g.leave()

	release := <-done
	assert.Equal(t, uint64(1), g.epoch.Load())

	blocked, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, g.enter(blocked), "passes stay out while quiesced")

	release()
	release()
	require.NoError(t, g.enter(ctx))
	g.leave()
}

func TestChannelNotifier_CountsDroppedEvents(t *testing.T) {
	n := NewChannelNotifier(1)

	n.StatusChanged(StatusEvent{FolderID: "f", OldStatus: types.StatusActive, NewStatus: types.StatusSyncing})
	n.StatusChanged(StatusEvent{FolderID: "f", OldStatus: types.StatusSyncing, NewStatus: types.StatusCompleted})
	n.DecisionRequired(DecisionEvent{FolderID: "f", RelativePath: "a.txt"})
	n.DecisionRequired(DecisionEvent{FolderID: "f", RelativePath: "b.txt"})

	assert.Equal(t, uint64(2), n.Dropped())
	ev := <-n.Status
	assert.Equal(t, types.StatusSyncing, ev.NewStatus, "the first event is kept")
	assert.Equal(t, "a.txt", (<-n.Decisions).RelativePath)
}
