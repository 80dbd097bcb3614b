package diff

import (
	"github.com/dl-alexandre/docsync/internal/types"
)

// Action is what a pass does to one relative path
type Action string

const (
	ActionNone            Action = "none"
	ActionDownloadNew     Action = "downloadNew"
	ActionDownloadUpdate  Action = "downloadUpdate"
	ActionUploadNew       Action = "uploadNew"
	ActionUploadUpdate    Action = "uploadUpdate"
	ActionDeleteLocal     Action = "deleteLocal"
	ActionDeleteRemote    Action = "deleteRemote"
	ActionConflict        Action = "conflict"
	ActionPendingDecision Action = "pendingDecision"
)

// ChangesLocal reports whether the action writes to the local side
func (a Action) ChangesLocal() bool {
	return a == ActionDownloadNew || a == ActionDownloadUpdate || a == ActionDeleteLocal
}

// ChangesRemote reports whether the action writes to the remote side
func (a Action) ChangesRemote() bool {
	return a == ActionUploadNew || a == ActionUploadUpdate || a == ActionDeleteRemote
}

func (a Action) IsDelete() bool {
	return a == ActionDeleteLocal || a == ActionDeleteRemote
}

// Baseline marks a no-op item whose snapshot entry still has to change
type Baseline string

const (
	// BaselineRefresh records the current, already identical, state
	BaselineRefresh Baseline = "refresh"
	// BaselineForget drops an entry whose path is gone on both sides
	BaselineForget Baseline = "forget"
)

// Resolution is the outcome of resolving a conflict item
type Resolution struct {
	Policy types.ConflictPolicy `json:"policy"`
	Action Action               `json:"action"`
	// CopyPath receives the remote content when Action is downloadNew
	CopyPath string `json:"copyPath,omitempty"`
	// UploadOriginal uploads the local original under its own name
	UploadOriginal bool `json:"uploadOriginal,omitempty"`
}

// Item is one planned path
type Item struct {
	Path       string               `json:"path"`
	Action     Action               `json:"action"`
	IsDir      bool                 `json:"isDir,omitempty"`
	Local      *types.LocalNode     `json:"local,omitempty"`
	Remote     *types.RemoteNode    `json:"remote,omitempty"`
	Base       *types.SnapshotEntry `json:"base,omitempty"`
	Baseline   Baseline             `json:"baseline,omitempty"`
	SkipReason string               `json:"skipReason,omitempty"`
	Resolution *Resolution          `json:"resolution,omitempty"`
}

// Effective is the action the executor will perform, following a
// conflict's resolution when there is one
func (i Item) Effective() Action {
	if i.Action == ActionConflict && i.Resolution != nil {
		return i.Resolution.Action
	}
	return i.Action
}

// Skipped reports whether the item was left alone for a recorded reason
func (i Item) Skipped() bool {
	return i.SkipReason != ""
}
