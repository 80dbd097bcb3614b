// Package sync runs reconciliation passes for sync folders.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/dl-alexandre/docsync/internal/api"
	"github.com/dl-alexandre/docsync/internal/auth"
	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/store"
	"github.com/dl-alexandre/docsync/internal/sync/exclude"
	"github.com/dl-alexandre/docsync/internal/sync/scanner"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Store is the persistence the engine reads and writes
type Store interface {
	GetAccount(ctx context.Context, id string) (*types.Account, error)
	GetFolder(ctx context.Context, id string) (*types.SyncFolder, error)
	ListFolders(ctx context.Context) ([]types.SyncFolder, error)
	UpdateFolder(ctx context.Context, f types.SyncFolder) error
	UpdateFolderStatus(ctx context.Context, id string, status types.SyncStatus, lastError string, lastSyncAt *time.Time) error
	Snapshot(ctx context.Context, folderID string) (map[string]types.SnapshotEntry, error)
	UpsertEntry(ctx context.Context, e types.SnapshotEntry) error
	DeleteEntry(ctx context.Context, folderID, relativePath string) error
	UpsertPendingDecision(ctx context.Context, p types.PendingDecision) error
	RecordDecision(ctx context.Context, folderID, relativePath string, decision types.ConflictPolicy, at time.Time) error
	ListPendingDecisions(ctx context.Context, folderID string) ([]types.PendingDecision, error)
	DeletePendingDecision(ctx context.Context, folderID, relativePath string) error
}

var _ Store = (*store.DB)(nil)

// Options configures an Engine
type Options struct {
	Store       Store
	Connector   remote.Connector
	Credentials auth.CredentialContext
	Client      *api.Client
	Fs          afero.Fs
	// Workers caps passes running at once across all folders
	Workers          int
	DownloadAttempts int
	// ChecksumAlgorithm is used when the service does not name one
	ChecksumAlgorithm string
	ExcludePatterns   []string
	Notifier          Notifier
	Logger            logging.Logger
	Clock             clockwork.Clock
	// LockDir holds one lock file per folder, shared by every process that
	// opens the same store. The directory must exist. Empty means this
	// engine is the only one running passes against the store.
	LockDir string
}

// Engine schedules and runs passes. Each folder has at most one pass in
// flight; a trigger that finds a pass running is coalesced into it.
type Engine struct {
	store       Store
	connector   remote.Connector
	credentials auth.CredentialContext
	client      *api.Client
	scanner     *scanner.RemoteScanner
	fs          afero.Fs
	attempts    int
	algorithm   string
	matcher     *exclude.Matcher
	notifier    Notifier
	logger      logging.Logger
	clock       clockwork.Clock

	workers *semaphore.Weighted
	locks   folderLocks
	gates   accountGates

	wg gosync.WaitGroup
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Client == nil {
		opts.Client = api.NewClient("docs", utils.DefaultMaxRetries, utils.DefaultRetryDelayMs, opts.Logger)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	if opts.Workers < 1 {
		opts.Workers = utils.DefaultWorkers
	}
	if opts.DownloadAttempts < 1 {
		opts.DownloadAttempts = utils.DefaultDownloadAttempts
	}
	return &Engine{
		store:       opts.Store,
		connector:   opts.Connector,
		credentials: opts.Credentials,
		client:      opts.Client,
		scanner:     scanner.NewRemoteScanner(opts.Client),
		fs:          opts.Fs,
		attempts:    opts.DownloadAttempts,
		algorithm:   opts.ChecksumAlgorithm,
		matcher:     exclude.New(opts.ExcludePatterns),
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		clock:       opts.Clock,
		workers:     semaphore.NewWeighted(int64(opts.Workers)),
		locks:       folderLocks{dir: opts.LockDir},
	}
}

// LockFolder waits for exclusive access to a folder's records. With
// interrupt set, a running pass is asked to stop at its next checkpoint.
// The returned release must be called exactly once.
func (e *Engine) LockFolder(ctx context.Context, folderID string, interrupt bool) (func(), error) {
	l := e.locks.get(folderID)
	if interrupt {
		l.requestInterrupt()
	}
	if err := l.lock(ctx); err != nil {
		if interrupt {
			l.interrupt.Store(false)
		}
		return nil, err
	}
	l.interrupt.Store(false)
	return l.unlock, nil
}

// Quiesce waits until every pass of the account has reached a checkpoint
// and holds them there until release is called. Passes that resume after
// a quiesce resolve their credentials again.
func (e *Engine) Quiesce(ctx context.Context, accountID string) (func(), error) {
	return e.gates.get(accountID).quiesce(ctx)
}

// Enable moves a paused folder to active and lets passes run for it
func (e *Engine) Enable(ctx context.Context, folderID string) (*types.SyncFolder, error) {
	release, err := e.LockFolder(ctx, folderID, false)
	if err != nil {
		return nil, err
	}
	defer release()

	folder, err := e.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := e.recoverInterrupted(ctx, folder); err != nil {
		return nil, err
	}
	if !folder.IsEnabled {
		folder.IsEnabled = true
		if err := e.store.UpdateFolder(ctx, *folder); err != nil {
			return nil, err
		}
	}
	if folder.Status == types.StatusPaused {
		if err := e.transition(ctx, folder, types.StatusActive, folder.LastError, nil); err != nil {
			return nil, err
		}
	}
	return folder, nil
}

// Disable stops passes for a folder. A running pass is interrupted at its
// next checkpoint; Disable returns once the folder is paused.
func (e *Engine) Disable(ctx context.Context, folderID string) (*types.SyncFolder, error) {
	release, err := e.LockFolder(ctx, folderID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	folder, err := e.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := e.recoverInterrupted(ctx, folder); err != nil {
		return nil, err
	}
	if folder.IsEnabled {
		folder.IsEnabled = false
		if err := e.store.UpdateFolder(ctx, *folder); err != nil {
			return nil, err
		}
	}
	if folder.Status != types.StatusPaused {
		if err := e.transition(ctx, folder, types.StatusPaused, folder.LastError, nil); err != nil {
			return nil, err
		}
	}
	return folder, nil
}

// Decide records the policy chosen for a deferred conflict. The next pass
// applies it.
func (e *Engine) Decide(ctx context.Context, folderID, relativePath string, decision types.ConflictPolicy) error {
	if !decision.Decisive() {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "decision must be remoteWins, localWins or createCopy").
			WithContext("decision", string(decision)).
			Err()
	}
	err := e.store.RecordDecision(ctx, folderID, relativePath, decision, e.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return utils.NewCLIError(utils.ErrCodeNotFound, "no pending decision for path").
			WithContext("folderId", folderID).
			WithContext("path", relativePath).
			Err()
	}
	return err
}

// PendingDecisions lists deferred conflicts; an empty folderID lists all
func (e *Engine) PendingDecisions(ctx context.Context, folderID string) ([]types.PendingDecision, error) {
	return e.store.ListPendingDecisions(ctx, folderID)
}

// TriggerAll runs a pass for every enabled folder. Passes run concurrently
// up to the worker limit; one folder's failure does not stop the others.
func (e *Engine) TriggerAll(ctx context.Context) ([]*PassResult, error) {
	folders, err := e.store.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	var enabled []types.SyncFolder
	for _, f := range folders {
		if f.IsEnabled {
			enabled = append(enabled, f)
		}
	}

	results := make([]*PassResult, len(enabled))
	var g errgroup.Group
	for i, f := range enabled {
		i, f := i, f
		g.Go(func() error {
			res, err := e.Trigger(ctx, f.ID)
			results[i] = res
			return err
		})
	}
	err = g.Wait()
	return results, err
}

// Start triggers every enabled folder now and then once per interval until
// ctx is done
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := e.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := e.TriggerAll(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("scheduled sync failed", logging.F("error", err.Error()))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
			}
		}
	}()
}

// Wait blocks until the scheduler started by Start has stopped
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) loadFolder(ctx context.Context, folderID string) (*types.SyncFolder, error) {
	folder, err := e.store.GetFolder(ctx, folderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, utils.NewCLIError(utils.ErrCodeNotFound, "sync folder not found").
			WithContext("folderId", folderID).
			Err()
	}
	return folder, err
}

// interruptedPassError is recorded for a folder whose pass died without
// leaving syncing
const interruptedPassError = "previous pass interrupted"

// recoverInterrupted moves a folder found syncing into error. Callers hold
// the folder lock, so no live pass can own that status.
func (e *Engine) recoverInterrupted(ctx context.Context, folder *types.SyncFolder) error {
	if folder.Status != types.StatusSyncing {
		return nil
	}
	e.logger.Warn("recovering folder left syncing by an interrupted pass", logging.F("folderId", folder.ID))
	return e.transition(ctx, folder, types.StatusError, interruptedPassError, nil)
}

// transition persists a status change and emits it. Callers hold the
// folder lock.
func (e *Engine) transition(ctx context.Context, folder *types.SyncFolder, to types.SyncStatus, lastError string, syncedAt *time.Time) error {
	from := folder.Status
	if !CanTransition(from, to) {
		return invalidTransition(folder.ID, from, to)
	}
	if err := e.store.UpdateFolderStatus(ctx, folder.ID, to, lastError, syncedAt); err != nil {
		return err
	}
	folder.Status = to
	folder.LastError = lastError
	if syncedAt != nil {
		folder.LastSyncAt = syncedAt
	}

	e.logger.Debug("folder status changed",
		logging.F("folderId", folder.ID),
		logging.F("from", string(from)),
		logging.F("to", string(to)),
	)
	e.notifier.StatusChanged(StatusEvent{
		FolderID:  folder.ID,
		OldStatus: from,
		NewStatus: to,
		LastError: lastError,
		At:        e.clock.Now(),
	})
	return nil
}
