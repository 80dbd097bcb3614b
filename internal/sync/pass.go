package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dl-alexandre/docsync/internal/api"
	apierrors "github.com/dl-alexandre/docsync/internal/errors"
	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/sync/conflict"
	"github.com/dl-alexandre/docsync/internal/sync/diff"
	"github.com/dl-alexandre/docsync/internal/sync/executor"
	"github.com/dl-alexandre/docsync/internal/sync/integrity"
	"github.com/dl-alexandre/docsync/internal/sync/scanner"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var errInterrupted = errors.New("pass interrupted")

// pass is the state of one running reconciliation
type pass struct {
	e       *Engine
	folder  *types.SyncFolder
	account types.Account
	lock    *folderLock
	gate    *accountGate
	entered bool
	epoch   uint64

	svc       remote.Service
	token     string
	validator *integrity.Validator
	tree      *scanner.Tree
	plan      *diff.Plan
	pending   map[string]types.PendingDecision
	session   *executor.Session

	reqCtx *types.RequestContext
	logger logging.Logger
	result *PassResult
}

// Trigger runs one pass for the folder now. When a pass for the folder is
// already in flight the call returns at once with Coalesced set.
func (e *Engine) Trigger(ctx context.Context, folderID string) (*PassResult, error) {
	l := e.locks.get(folderID)
	locked, err := l.tryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock folder %s: %w", folderID, err)
	}
	if !locked {
		e.logger.Debug("pass already running, trigger coalesced", logging.F("folderId", folderID))
		return &PassResult{FolderID: folderID, Coalesced: true}, nil
	}
	defer l.unlock()

	folder, err := e.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := e.recoverInterrupted(ctx, folder); err != nil {
		return nil, err
	}
	if !folder.IsEnabled {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidTransition, "folder is disabled").
			WithContext("folderId", folderID).
			Err()
	}

	if err := l.acquireWorker(ctx, e.workers); err != nil {
		if errors.Is(err, errInterrupted) {
			e.logger.Debug("folder interrupted while waiting for a worker", logging.F("folderId", folderID))
			return &PassResult{FolderID: folderID, Interrupted: true, Status: folder.Status, LastError: folder.LastError}, nil
		}
		return nil, err
	}
	defer e.workers.Release(1)

	return e.runPass(ctx, folder, l)
}

// PlanFolder computes the plan a pass would apply without changing
// anything
func (e *Engine) PlanFolder(ctx context.Context, folderID string) (*diff.Plan, error) {
	folder, err := e.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	p := e.newPass(folder, nil)
	if err := p.connect(ctx); err != nil {
		return nil, err
	}
	if err := p.buildPlan(ctx, false); err != nil {
		return nil, err
	}
	return p.plan, nil
}

func (e *Engine) newPass(folder *types.SyncFolder, l *folderLock) *pass {
	traceID := uuid.New().String()
	return &pass{
		e:      e,
		folder: folder,
		lock:   l,
		gate:   e.gates.get(folder.AccountID),
		logger: e.logger.WithTraceID(traceID),
		result: &PassResult{FolderID: folder.ID, TraceID: traceID, StartedAt: e.clock.Now()},
	}
}

func (e *Engine) runPass(ctx context.Context, folder *types.SyncFolder, l *folderLock) (*PassResult, error) {
	p := e.newPass(folder, l)
	// records must reflect every operation that completed, even when ctx
	// is cancelled while the pass winds down
	persist := context.WithoutCancel(ctx)

	if folder.Status != types.StatusActive {
		if err := e.transition(persist, folder, types.StatusActive, folder.LastError, nil); err != nil {
			return nil, err
		}
	}
	if err := e.transition(persist, folder, types.StatusSyncing, folder.LastError, nil); err != nil {
		return nil, err
	}
	p.logger.Info("sync pass started", logging.F("folderId", folder.ID), logging.F("localPath", folder.LocalPath))

	runErr := p.run(ctx)
	if p.entered {
		p.gate.leave()
		p.entered = false
	}
	return p.finish(persist, runErr)
}

func (p *pass) run(ctx context.Context) error {
	if err := p.gate.enter(ctx); err != nil {
		return errInterrupted
	}
	p.entered = true
	p.epoch = p.gate.epoch.Load()

	if err := p.connect(ctx); err != nil {
		return err
	}
	if err := p.buildPlan(ctx, true); err != nil {
		return err
	}
	return p.apply(ctx)
}

// connect resolves the account, its token and its service
func (p *pass) connect(ctx context.Context) error {
	account, err := p.e.store.GetAccount(ctx, p.folder.AccountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	p.account = *account

	token, err := p.e.credentials.ResolveToken(ctx, account.Key())
	if err != nil {
		return err
	}
	p.token = token

	svc, err := p.e.connector.Connect(ctx, *account)
	if err != nil {
		return err
	}
	p.svc = svc

	algorithm := svc.ChecksumAlgorithm()
	if algorithm == "" {
		algorithm = p.e.algorithm
	}
	p.validator, err = integrity.New(algorithm)
	if err != nil {
		return err
	}

	p.reqCtx = api.NewRequestContext(account.Key(), p.folder.ID, types.RequestTypeList)
	p.reqCtx.TraceID = p.result.TraceID
	return nil
}

// buildPlan scans both sides and resolves conflicts. With prepare set the
// local root is created when missing and stale pending decisions are
// dropped.
func (p *pass) buildPlan(ctx context.Context, prepare bool) error {
	snapshot, err := p.e.store.Snapshot(ctx, p.folder.ID)
	if err != nil {
		return err
	}

	local := map[string]types.LocalNode{}
	exists, err := afero.DirExists(p.e.fs, p.folder.LocalPath)
	if err != nil {
		return err
	}
	if !exists && prepare {
		if err := p.e.fs.MkdirAll(p.folder.LocalPath, 0755); err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, "cannot create local folder").
				WithContext("localPath", p.folder.LocalPath).
				Build(), err)
		}
		exists = true
	}
	if exists {
		local, err = scanner.ScanLocal(ctx, p.e.fs, p.folder.LocalPath, p.e.matcher, p.validator, snapshot)
		if err != nil {
			return err
		}
	}

	p.tree, err = p.e.scanner.ListTree(ctx, p.svc, p.token, p.reqCtx, p.folder.RemoteFolderID)
	if err != nil {
		return err
	}

	p.plan = diff.Compute(diff.Input{
		FolderID:  p.folder.ID,
		Direction: p.folder.SyncDirection,
		Root:      p.tree.Root,
		Snapshot:  snapshot,
		Local:     local,
		Remote:    p.tree.Nodes,
		Denied:    p.tree.Denied,
		Exclude:   p.e.matcher,
	})

	stored, err := p.e.store.ListPendingDecisions(ctx, p.folder.ID)
	if err != nil {
		return err
	}
	p.pending = make(map[string]types.PendingDecision, len(stored))
	decided := make(map[string]types.ConflictPolicy)
	for _, d := range stored {
		p.pending[d.RelativePath] = d
		if d.Decision.Decisive() {
			decided[d.RelativePath] = d.Decision
		}
	}
	conflict.ResolvePlan(p.plan, p.folder.ConflictResolution, decided)

	if prepare {
		conflicts := make(map[string]bool)
		for _, i := range p.plan.Conflicts() {
			conflicts[p.plan.Items[i].Path] = true
		}
		for rel := range p.pending {
			if conflicts[rel] {
				continue
			}
			if err := p.e.store.DeletePendingDecision(ctx, p.folder.ID, rel); err != nil {
				return err
			}
			delete(p.pending, rel)
		}
	}

	counts := p.plan.Counts()
	p.logger.Debug("plan computed",
		logging.F("folderId", p.folder.ID),
		logging.F("items", len(p.plan.Items)),
		logging.F("downloads", counts[diff.ActionDownloadNew]+counts[diff.ActionDownloadUpdate]),
		logging.F("uploads", counts[diff.ActionUploadNew]+counts[diff.ActionUploadUpdate]),
		logging.F("deletes", counts[diff.ActionDeleteLocal]+counts[diff.ActionDeleteRemote]),
		logging.F("deferred", counts[diff.ActionPendingDecision]),
	)
	return nil
}

// apply executes the plan in order, persisting each item's snapshot change
// as soon as the item completes
func (p *pass) apply(ctx context.Context) error {
	folders := make(map[string]types.RemoteNode)
	for rel, node := range p.tree.Nodes {
		if node.IsFolder() {
			folders[rel] = node
		}
	}
	exec := executor.New(executor.Options{
		Fs:               p.e.fs,
		Client:           p.e.client,
		Validator:        p.validator,
		DownloadAttempts: p.e.attempts,
		Logger:           p.logger,
	})
	p.session = exec.NewSession(p.svc, p.token, executor.Target{
		AccountKey: p.account.Key(),
		FolderID:   p.folder.ID,
		LocalRoot:  p.folder.LocalPath,
		Root:       p.tree.Root,
		Folders:    folders,
	}, p.logger)

	persist := context.WithoutCancel(ctx)
	var firstFailure string

	for i, item := range p.plan.Items {
		if i > 0 {
			if err := p.checkpoint(ctx); err != nil {
				return err
			}
		}

		res, err := p.applyItem(ctx, persist, item)
		switch {
		case err == nil:
		case apierrors.IsAuthFailure(err):
			return err
		case utils.IsCode(err, utils.ErrCodeCancelled) || ctx.Err() != nil:
			return errInterrupted
		case apierrors.IsPermissionDenied(err):
			res.Outcome = OutcomeSkipped
			res.Reason = err.Error()
		default:
			res.Outcome = OutcomeFailed
			res.Reason = err.Error()
			if firstFailure == "" {
				firstFailure = fmt.Sprintf("%s: %v", item.Path, err)
			}
			p.logger.Warn("sync item failed",
				logging.F("folderId", p.folder.ID),
				logging.F("path", item.Path),
				logging.F("action", string(item.Effective())),
				logging.F("error", err.Error()),
			)
		}

		if res.Outcome == "" {
			p.result.Unchanged++
			continue
		}
		p.result.Items = append(p.result.Items, res)
		if res.Outcome == OutcomeApplied && item.Action == diff.ActionConflict {
			if _, ok := p.pending[item.Path]; ok {
				if err := p.e.store.DeletePendingDecision(persist, p.folder.ID, item.Path); err != nil {
					return err
				}
				delete(p.pending, item.Path)
			}
		}
	}

	if firstFailure != "" {
		return &itemFailures{first: firstFailure}
	}
	return nil
}

// checkpoint runs between plan items. It stops the pass when interrupted,
// lets a waiting quiesce through and picks up a fresh token afterwards.
func (p *pass) checkpoint(ctx context.Context) error {
	p.gate.leave()
	p.entered = false
	if p.lock.interrupt.Load() || ctx.Err() != nil {
		return errInterrupted
	}
	if err := p.gate.enter(ctx); err != nil {
		return errInterrupted
	}
	p.entered = true

	if epoch := p.gate.epoch.Load(); epoch != p.epoch {
		p.epoch = epoch
		token, err := p.e.credentials.ResolveToken(ctx, p.account.Key())
		if err != nil {
			return err
		}
		p.token = token
		p.session.SetToken(token)
		p.logger.Debug("credentials refreshed after quiesce", logging.F("folderId", p.folder.ID))
	}
	return nil
}

type itemFailures struct {
	first string
}

func (f *itemFailures) Error() string {
	return f.first
}

// finish moves the folder out of syncing according to how the pass ended
func (p *pass) finish(ctx context.Context, runErr error) (*PassResult, error) {
	folder := p.folder
	var failures *itemFailures
	var err error

	switch {
	case runErr == nil:
		now := p.e.clock.Now()
		err = p.e.transition(ctx, folder, types.StatusCompleted, "", &now)
	case errors.Is(runErr, errInterrupted) || utils.IsCode(runErr, utils.ErrCodeCancelled):
		err = p.e.transition(ctx, folder, types.StatusPaused, folder.LastError, nil)
	case errors.As(runErr, &failures):
		err = p.e.transition(ctx, folder, types.StatusError, failures.first, nil)
	default:
		err = p.e.transition(ctx, folder, types.StatusError, runErr.Error(), nil)
	}
	if err != nil {
		return nil, err
	}

	p.result.Status = folder.Status
	p.result.LastError = folder.LastError
	p.result.FinishedAt = p.e.clock.Now()

	fields := []logging.Field{
		logging.F("folderId", folder.ID),
		logging.F("status", string(folder.Status)),
		logging.F("applied", p.result.Count(OutcomeApplied)),
		logging.F("skipped", p.result.Count(OutcomeSkipped)),
		logging.F("deferred", p.result.Count(OutcomeDeferred)),
		logging.F("failed", p.result.Count(OutcomeFailed)),
		logging.F("duration_ms", p.result.FinishedAt.Sub(p.result.StartedAt).Milliseconds()),
	}
	if folder.Status == types.StatusError {
		p.logger.Error("sync pass failed", append(fields, logging.F("error", folder.LastError))...)
	} else {
		p.logger.Info("sync pass finished", fields...)
	}
	return p.result, nil
}
