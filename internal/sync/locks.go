package sync

import (
	"context"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"
)

// fileLockRetry is how often a blocking lock polls a lock file held by
// another process
const fileLockRetry = 100 * time.Millisecond

// folderLock admits one holder at a time. With a lock file it also
// excludes other processes sharing the store, so a holder that finds the
// folder syncing knows the pass that set it is dead. The interrupt flag
// asks the holder to stop at its next checkpoint.
type folderLock struct {
	ch        chan struct{}
	file      *flock.Flock
	interrupt atomic.Bool

	mu         gosync.Mutex
	cancelWait context.CancelFunc
}

// tryLock returns false without waiting when another holder, in this
// process or another, has the folder
func (l *folderLock) tryLock() (bool, error) {
	select {
	case l.ch <- struct{}{}:
	default:
		return false, nil
	}
	if l.file == nil {
		return true, nil
	}
	ok, err := l.file.TryLock()
	if err != nil || !ok {
		<-l.ch
		return false, err
	}
	return true, nil
}

func (l *folderLock) lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if l.file == nil {
		return nil
	}
	ok, err := l.file.TryLockContext(ctx, fileLockRetry)
	if !ok {
		<-l.ch
		if err == nil {
			err = ctx.Err()
		}
		return err
	}
	return nil
}

func (l *folderLock) unlock() {
	if l.file != nil {
		_ = l.file.Unlock()
	}
	<-l.ch
}

// requestInterrupt sets the interrupt flag and abandons a pending wait for
// a worker slot
func (l *folderLock) requestInterrupt() {
	l.interrupt.Store(true)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelWait != nil {
		l.cancelWait()
	}
}

// acquireWorker takes a worker slot for the holder. It returns
// errInterrupted when the folder is interrupted before a slot frees up.
func (l *folderLock) acquireWorker(ctx context.Context, workers *semaphore.Weighted) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	l.cancelWait = cancel
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.cancelWait = nil
		l.mu.Unlock()
	}()

	if l.interrupt.Load() {
		return errInterrupted
	}
	if err := workers.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errInterrupted
	}
	if l.interrupt.Load() {
		workers.Release(1)
		return errInterrupted
	}
	return nil
}

type folderLocks struct {
	mu    gosync.Mutex
	dir   string
	locks map[string]*folderLock
}

func (f *folderLocks) get(folderID string) *folderLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks == nil {
		f.locks = make(map[string]*folderLock)
	}
	l, ok := f.locks[folderID]
	if !ok {
		l = &folderLock{ch: make(chan struct{}, 1)}
		if f.dir != "" {
			l.file = flock.New(filepath.Join(f.dir, folderID+".lock"))
		}
		f.locks[folderID] = l
	}
	return l
}

// gateWeight is what a quiesce acquires; passes acquire one unit each
const gateWeight = 1 << 30

// accountGate lets any number of passes of one account run until the
// account is quiesced. A waiting quiesce blocks passes from re-entering.
type accountGate struct {
	sem   *semaphore.Weighted
	epoch atomic.Uint64
}

func (g *accountGate) enter(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *accountGate) leave() {
	g.sem.Release(1)
}

func (g *accountGate) quiesce(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, gateWeight); err != nil {
		return nil, err
	}
	g.epoch.Add(1)
	var once gosync.Once
	return func() {
		once.Do(func() { g.sem.Release(gateWeight) })
	}, nil
}

type accountGates struct {
	mu    gosync.Mutex
	gates map[string]*accountGate
}

func (a *accountGates) get(accountID string) *accountGate {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gates == nil {
		a.gates = make(map[string]*accountGate)
	}
	g, ok := a.gates[accountID]
	if !ok {
		g = &accountGate{sem: semaphore.NewWeighted(gateWeight)}
		a.gates[accountID] = g
	}
	return g
}
