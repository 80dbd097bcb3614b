package sync

import (
	"time"

	"github.com/dl-alexandre/docsync/internal/sync/diff"
	"github.com/dl-alexandre/docsync/internal/types"
)

// Outcome is what happened to one plan item during a pass
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeDeferred Outcome = "deferred"
	OutcomeFailed   Outcome = "failed"
)

// ItemResult reports one plan item that did something or was held back
type ItemResult struct {
	Path     string      `json:"path"`
	Action   diff.Action `json:"action"`
	Outcome  Outcome     `json:"outcome"`
	Reason   string      `json:"reason,omitempty"`
	CopyPath string      `json:"copyPath,omitempty"`
}

// PassResult summarizes one pass
type PassResult struct {
	FolderID string `json:"folderId"`
	TraceID  string `json:"traceId,omitempty"`
	// Coalesced is set when another pass for the folder was already running
	Coalesced bool `json:"coalesced,omitempty"`
	// Interrupted is set when the folder was disabled before the pass got
	// a worker
	Interrupted bool             `json:"interrupted,omitempty"`
	Status      types.SyncStatus `json:"status,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
	Unchanged   int              `json:"unchanged"`
	Items       []ItemResult     `json:"items,omitempty"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
}

// Count returns how many items ended with outcome
func (r *PassResult) Count(outcome Outcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// Item returns the result for path
func (r *PassResult) Item(path string) (ItemResult, bool) {
	for _, item := range r.Items {
		if item.Path == path {
			return item, true
		}
	}
	return ItemResult{}, false
}
