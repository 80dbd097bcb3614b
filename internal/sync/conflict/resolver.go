// Package conflict decides how a path changed on both sides is settled.
package conflict

import (
	"path"
	"strings"
	"time"

	"github.com/dl-alexandre/docsync/internal/sync/diff"
	"github.com/dl-alexandre/docsync/internal/sync/integrity"
	"github.com/dl-alexandre/docsync/internal/types"
)

const copyTimeFormat = "20060102-150405"

// Resolve maps a conflict to an action. It depends only on its arguments.
// Identical content collapses to none whatever the policy.
func Resolve(local *types.LocalNode, remote *types.RemoteNode, base *types.SnapshotEntry, policy types.ConflictPolicy) diff.Resolution {
	res := diff.Resolution{Policy: policy}

	if local != nil && remote != nil && integrity.Equal(local.Checksum, remote.Checksum) {
		res.Action = diff.ActionNone
		return res
	}

	switch policy {
	case types.PolicyRemoteWins:
		res.Action = diff.ActionDownloadUpdate
	case types.PolicyLocalWins:
		res.Action = diff.ActionUploadUpdate
	case types.PolicyCreateCopy:
		res.Action = diff.ActionDownloadNew
		res.UploadOriginal = true
		var at time.Time
		if remote != nil {
			at = remote.UpdatedAt
		}
		if local != nil {
			res.CopyPath = CopyPath(local.RelativePath, at)
		}
	default:
		res.Action = diff.ActionPendingDecision
	}
	return res
}

// CopyPath names the sibling that receives the remote side of a conflict,
// e.g. "dir/report (remote copy 20260301-120000).txt"
func CopyPath(rel string, remoteUpdated time.Time) string {
	dir, name := path.Split(rel)
	ext := path.Ext(name)
	if ext == name {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)

	label := "remote copy"
	if !remoteUpdated.IsZero() {
		label += " " + remoteUpdated.UTC().Format(copyTimeFormat)
	}
	return dir + stem + " (" + label + ")" + ext
}

// ResolvePlan resolves every conflict item in plan. A decided entry in
// decisions overrides the folder policy for its path.
func ResolvePlan(plan *diff.Plan, policy types.ConflictPolicy, decisions map[string]types.ConflictPolicy) {
	for _, i := range plan.Conflicts() {
		item := plan.Items[i]
		effective := policy
		if decided, ok := decisions[item.Path]; ok && decided.Decisive() {
			effective = decided
		}
		plan.Resolve(i, Resolve(item.Local, item.Remote, item.Base, effective))
	}
}
