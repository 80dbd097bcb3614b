package cli

import (
	"fmt"
	"strconv"
	"time"

	syncengine "github.com/dl-alexandre/docsync/internal/sync"
	"github.com/dl-alexandre/docsync/internal/sync/diff"
	"github.com/dl-alexandre/docsync/internal/types"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// accountView is an account with whether the vault holds its credential
type accountView struct {
	types.Account
	HasCredential bool `json:"hasCredential"`
}

type accountList []accountView

func (l accountList) Headers() []string {
	return []string{"", "ID", "Name", "Email", "Server", "Credential", "Created"}
}

func (l accountList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, a := range l {
		marker := ""
		if a.IsActive {
			marker = "*"
		}
		credential := "missing"
		if a.HasCredential {
			credential = "stored"
		}
		created := a.CreatedAt
		rows = append(rows, []string{marker, a.ID, a.DisplayName, a.Email, a.ServerURL, credential, formatTime(&created)})
	}
	return rows
}

func (l accountList) EmptyMessage() string {
	return "No accounts. Add one with 'docsync account add'."
}

type folderList []types.SyncFolder

func (l folderList) Headers() []string {
	return []string{"ID", "Local Path", "Remote", "Direction", "Conflicts", "Status", "Last Sync", "Error"}
}

func (l folderList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, f := range l {
		status := string(f.Status)
		if !f.IsEnabled {
			status += " (disabled)"
		}
		remote := f.RemoteFolderPath
		if remote == "" {
			remote = f.RemoteFolderID
		}
		rows = append(rows, []string{
			f.ID,
			f.LocalPath,
			truncate(remote, 40),
			string(f.SyncDirection),
			string(f.ConflictResolution),
			status,
			formatTime(f.LastSyncAt),
			truncate(f.LastError, 40),
		})
	}
	return rows
}

func (l folderList) EmptyMessage() string {
	return "No sync folders. Add one with 'docsync folder add'."
}

type remoteList []types.RemoteNode

func (l remoteList) Headers() []string {
	return []string{"ID", "Name", "Kind", "Size", "Updated", "Permissions"}
}

func (l remoteList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, n := range l {
		size := "-"
		if !n.IsFolder() {
			size = formatSize(n.Size)
		}
		updated := n.UpdatedAt
		rows = append(rows, []string{
			n.ID,
			truncate(n.Name, 40),
			string(n.Kind),
			size,
			formatTime(&updated),
			strconv.Itoa(len(n.Permissions)),
		})
	}
	return rows
}

func (l remoteList) EmptyMessage() string {
	return "No remote folders found."
}

type decisionList []types.PendingDecision

func (l decisionList) Headers() []string {
	return []string{"Folder", "Path", "Local", "Remote", "Decision", "Since"}
}

func (l decisionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, d := range l {
		decision := string(d.Decision)
		if decision == "" {
			decision = "-"
		}
		created := d.CreatedAt
		rows = append(rows, []string{
			d.FolderID,
			d.RelativePath,
			d.LocalSummary,
			d.RemoteSummary,
			decision,
			formatTime(&created),
		})
	}
	return rows
}

func (l decisionList) EmptyMessage() string {
	return "No conflicts waiting for a decision."
}

// passReport renders one or more pass results, one row per item that did
// something or was held back
type passReport []*syncengine.PassResult

func (r passReport) Headers() []string {
	return []string{"Folder", "Path", "Action", "Outcome", "Detail"}
}

func (r passReport) Rows() [][]string {
	var rows [][]string
	for _, res := range r {
		if res == nil {
			continue
		}
		if res.Coalesced {
			rows = append(rows, []string{res.FolderID, "-", "-", "coalesced", "a pass is already running"})
			continue
		}
		if res.Interrupted {
			rows = append(rows, []string{res.FolderID, "-", "-", "interrupted", "folder disabled before the pass started"})
			continue
		}
		for _, item := range res.Items {
			detail := item.Reason
			if item.CopyPath != "" {
				detail = "copy: " + item.CopyPath
			}
			rows = append(rows, []string{res.FolderID, item.Path, string(item.Action), string(item.Outcome), detail})
		}
		rows = append(rows, []string{
			res.FolderID,
			"",
			"",
			string(res.Status),
			summarizePass(res),
		})
	}
	return rows
}

func (r passReport) EmptyMessage() string {
	return "Nothing to sync."
}

func summarizePass(res *syncengine.PassResult) string {
	summary := fmt.Sprintf("%d applied, %d skipped, %d deferred, %d failed, %d unchanged",
		res.Count(syncengine.OutcomeApplied),
		res.Count(syncengine.OutcomeSkipped),
		res.Count(syncengine.OutcomeDeferred),
		res.Count(syncengine.OutcomeFailed),
		res.Unchanged,
	)
	if res.LastError != "" {
		summary += "; " + truncate(res.LastError, 60)
	}
	return summary
}

type planView struct {
	*diff.Plan
}

func (p planView) Headers() []string {
	return []string{"Path", "Action", "Effective", "Size", "Detail"}
}

func (p planView) Rows() [][]string {
	var rows [][]string
	for _, item := range p.Items {
		if item.Action == diff.ActionNone && !item.Skipped() {
			continue
		}
		size := "-"
		switch {
		case item.IsDir:
		case item.Local != nil && item.Effective().ChangesRemote():
			size = formatSize(item.Local.Size)
		case item.Remote != nil:
			size = formatSize(item.Remote.Size)
		}
		detail := item.SkipReason
		if item.Resolution != nil {
			detail = "policy " + string(item.Resolution.Policy)
			if item.Resolution.CopyPath != "" {
				detail += ", copy to " + item.Resolution.CopyPath
			}
		}
		rows = append(rows, []string{
			item.Path,
			string(item.Action),
			string(item.Effective()),
			size,
			detail,
		})
	}
	return rows
}

func (p planView) EmptyMessage() string {
	return "Local and remote are in sync."
}
