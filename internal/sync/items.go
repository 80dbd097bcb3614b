package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/sync/diff"
	"github.com/dl-alexandre/docsync/internal/sync/executor"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
)

// applyItem performs one plan item. Snapshot writes use persist so a
// completed transfer is always recorded. A zero Outcome means nothing
// happened worth reporting.
func (p *pass) applyItem(ctx, persist context.Context, item diff.Item) (ItemResult, error) {
	action := item.Effective()
	res := ItemResult{Path: item.Path, Action: action}
	if item.Resolution != nil {
		res.CopyPath = item.Resolution.CopyPath
	}

	switch action {
	case diff.ActionNone:
		if item.Skipped() {
			res.Outcome = OutcomeSkipped
			res.Reason = item.SkipReason
			return res, nil
		}
		switch item.Baseline {
		case diff.BaselineRefresh:
			return res, p.record(persist, item.Path, *item.Remote, *item.Local)
		case diff.BaselineForget:
			return res, p.e.store.DeleteEntry(persist, p.folder.ID, item.Path)
		}
		return res, nil

	case diff.ActionPendingDecision:
		res.Outcome = OutcomeDeferred
		return res, p.deferDecision(persist, item)

	case diff.ActionDownloadNew, diff.ActionDownloadUpdate:
		if item.Resolution != nil && item.Resolution.CopyPath != "" {
			return p.applyCopy(ctx, persist, item, res)
		}
		if item.Remote.IsFolder() {
			local, err := p.session.CreateLocalDir(item.Path)
			if err != nil {
				return res, err
			}
			res.Outcome = OutcomeApplied
			return res, p.record(persist, item.Path, *item.Remote, local)
		}
		if item.Local != nil {
			p.logger.Info("replacing local file with remote content",
				logging.F("path", item.Path),
				logging.F("localChecksum", item.Local.Checksum),
				logging.F("remoteChecksum", item.Remote.Checksum),
			)
		}
		local, err := p.session.Download(ctx, *item.Remote, item.Path)
		if err != nil {
			return res, err
		}
		res.Outcome = OutcomeApplied
		return res, p.record(persist, item.Path, *item.Remote, local)

	case diff.ActionUploadNew, diff.ActionUploadUpdate:
		if item.Local.IsDir {
			node, err := p.session.EnsureRemoteFolder(ctx, item.Path)
			if err != nil {
				return res, err
			}
			res.Outcome = OutcomeApplied
			return res, p.record(persist, item.Path, node, *item.Local)
		}
		node, local, err := p.session.Upload(ctx, item.Path)
		if err != nil {
			return res, err
		}
		res.Outcome = OutcomeApplied
		return res, p.record(persist, item.Path, node, local)

	case diff.ActionDeleteLocal:
		err := p.session.DeleteLocal(item.Path, item.Local)
		if errors.Is(err, executor.ErrDirectoryNotEmpty) || errors.Is(err, executor.ErrChangedSincePlan) {
			res.Outcome = OutcomeSkipped
			res.Reason = err.Error()
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.Outcome = OutcomeApplied
		return res, p.e.store.DeleteEntry(persist, p.folder.ID, item.Path)

	case diff.ActionDeleteRemote:
		if err := p.session.DeleteRemote(ctx, item.Path, *item.Remote); err != nil {
			return res, err
		}
		res.Outcome = OutcomeApplied
		return res, p.e.store.DeleteEntry(persist, p.folder.ID, item.Path)
	}

	return res, utils.NewCLIError(utils.ErrCodeInternalError, "unhandled plan action").
		WithContext("action", string(action)).
		Err()
}

// applyCopy settles a createCopy conflict: the remote content lands beside
// the local original, the copy is mirrored remotely and the original is
// uploaded under its own name when the folder allows it
func (p *pass) applyCopy(ctx, persist context.Context, item diff.Item, res ItemResult) (ItemResult, error) {
	resolution := item.Resolution
	copyPath := resolution.CopyPath

	copied, err := p.session.Download(ctx, *item.Remote, copyPath)
	if err != nil {
		return res, err
	}
	res.Outcome = OutcomeApplied
	if err := p.e.store.UpsertEntry(persist, types.SnapshotEntry{
		FolderID:     p.folder.ID,
		RelativePath: copyPath,
		Checksum:     copied.Checksum,
		LocalSize:    copied.Size,
		LocalModTime: copied.ModifiedAt.UnixNano(),
		SyncedAt:     p.e.clock.Now(),
	}); err != nil {
		return res, err
	}

	if p.folder.SyncDirection.AllowsUpload() {
		node, uploaded, err := p.session.Upload(ctx, copyPath)
		switch {
		case err == nil:
			if err := p.record(persist, copyPath, node, uploaded); err != nil {
				return res, err
			}
		case utils.IsCode(err, utils.ErrCodePermissionDenied):
			p.logger.Warn("conflict copy kept local only", logging.F("path", copyPath), logging.F("error", err.Error()))
		default:
			return res, err
		}
	}

	if resolution.UploadOriginal {
		node, uploaded, err := p.session.Upload(ctx, item.Path)
		if err != nil {
			return res, err
		}
		return res, p.record(persist, item.Path, node, uploaded)
	}

	// The original stays local only. Baselining on the remote state makes
	// the next pass see a local edit, which the folder's limits then skip,
	// instead of the same conflict again. The local size is left unset so
	// the next scan hashes the file.
	return res, p.e.store.UpsertEntry(persist, types.SnapshotEntry{
		FolderID:      p.folder.ID,
		RelativePath:  item.Path,
		RemoteID:      item.Remote.ID,
		RemoteVersion: item.Remote.Version,
		Checksum:      item.Remote.Checksum,
		LocalSize:     -1,
		SyncedAt:      p.e.clock.Now(),
	})
}

// record stores the reconciled state of one path
func (p *pass) record(ctx context.Context, rel string, node types.RemoteNode, local types.LocalNode) error {
	checksum := local.Checksum
	if checksum == "" && !local.IsDir {
		checksum = node.Checksum
	}
	return p.e.store.UpsertEntry(ctx, types.SnapshotEntry{
		FolderID:      p.folder.ID,
		RelativePath:  rel,
		RemoteID:      node.ID,
		RemoteVersion: node.Version,
		Checksum:      checksum,
		IsDir:         local.IsDir || node.IsFolder(),
		LocalSize:     local.Size,
		LocalModTime:  local.ModifiedAt.UnixNano(),
		SyncedAt:      p.e.clock.Now(),
	})
}

// deferDecision stores an askUser conflict and announces it the first time
// it is seen
func (p *pass) deferDecision(ctx context.Context, item diff.Item) error {
	decision := types.PendingDecision{
		FolderID:      p.folder.ID,
		RelativePath:  item.Path,
		LocalSummary:  summarizeLocal(item.Local, p.validator.Algorithm()),
		RemoteSummary: summarizeRemote(item.Remote, p.validator.Algorithm()),
		CreatedAt:     p.e.clock.Now(),
	}
	if err := p.e.store.UpsertPendingDecision(ctx, decision); err != nil {
		return err
	}
	if _, seen := p.pending[item.Path]; seen {
		return nil
	}
	p.pending[item.Path] = decision
	p.logger.Info("conflict awaiting decision", logging.F("folderId", p.folder.ID), logging.F("path", item.Path))
	p.e.notifier.DecisionRequired(DecisionEvent{
		FolderID:      decision.FolderID,
		RelativePath:  decision.RelativePath,
		LocalSummary:  decision.LocalSummary,
		RemoteSummary: decision.RemoteSummary,
	})
	return nil
}

func summarizeLocal(n *types.LocalNode, algorithm string) string {
	if n == nil {
		return "missing"
	}
	return fmt.Sprintf("%d bytes, modified %s, %s %s", n.Size, n.ModifiedAt.UTC().Format("2006-01-02 15:04:05"), algorithm, short(n.Checksum))
}

func summarizeRemote(n *types.RemoteNode, algorithm string) string {
	if n == nil {
		return "missing"
	}
	return fmt.Sprintf("%d bytes, modified %s, version %s, %s %s", n.Size, n.UpdatedAt.UTC().Format("2006-01-02 15:04:05"), n.Version, algorithm, short(n.Checksum))
}

func short(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
