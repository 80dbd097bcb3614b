package sync

import (
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
)

// transitions lists every status edge a folder may take
var transitions = map[types.SyncStatus][]types.SyncStatus{
	types.StatusPaused:    {types.StatusActive},
	types.StatusActive:    {types.StatusSyncing, types.StatusPaused},
	types.StatusSyncing:   {types.StatusCompleted, types.StatusError, types.StatusPaused},
	types.StatusCompleted: {types.StatusActive, types.StatusPaused},
	types.StatusError:     {types.StatusActive, types.StatusPaused},
}

// CanTransition reports whether a folder may move from one status to another
func CanTransition(from, to types.SyncStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func invalidTransition(folderID string, from, to types.SyncStatus) error {
	return utils.NewCLIError(utils.ErrCodeInvalidTransition, "invalid status transition").
		WithContext("folderId", folderID).
		WithContext("from", string(from)).
		WithContext("to", string(to)).
		Err()
}
