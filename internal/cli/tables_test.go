package cli

import (
	"testing"

	syncengine "github.com/dl-alexandre/docsync/internal/sync"
	"github.com/dl-alexandre/docsync/internal/sync/diff"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanView_ListsOnlyWork(t *testing.T) {
	plan := &diff.Plan{Items: []diff.Item{
		{Path: "same.txt", Action: diff.ActionNone},
		{Path: "new.txt", Action: diff.ActionDownloadNew, Remote: &types.RemoteNode{Size: 2048}},
		{Path: "ro.txt", Action: diff.ActionNone, SkipReason: "permission denied: missing edit_document_content"},
		{
			Path:   "both.txt",
			Action: diff.ActionConflict,
			Local:  &types.LocalNode{Size: 10},
			Remote: &types.RemoteNode{Size: 12},
			Resolution: &diff.Resolution{
				Policy:   types.PolicyCreateCopy,
				Action:   diff.ActionDownloadNew,
				CopyPath: "both (remote copy 20260201-080000).txt",
			},
		},
	}}

	rows := planView{plan}.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"new.txt", "downloadNew", "downloadNew", "2.0 KB", ""}, rows[0])
	assert.Equal(t, "permission denied: missing edit_document_content", rows[1][4])
	assert.Equal(t, "conflict", rows[2][1])
	assert.Equal(t, "downloadNew", rows[2][2])
	assert.Contains(t, rows[2][4], "copy to both (remote copy")
}

func TestPassReport_Rows(t *testing.T) {
	res := &syncengine.PassResult{
		FolderID: "f1",
		Status:   types.StatusError,
		Items: []syncengine.ItemResult{
			{Path: "a.txt", Action: diff.ActionUploadNew, Outcome: syncengine.OutcomeApplied},
			{Path: "b.txt", Action: diff.ActionDownloadUpdate, Outcome: syncengine.OutcomeFailed, Reason: "NETWORK_ERROR: reset"},
		},
		Unchanged: 4,
		LastError: "NETWORK_ERROR: reset",
	}
	rows := passReport{res, {FolderID: "f2", Coalesced: true}, {FolderID: "f3", Interrupted: true, Status: types.StatusActive}}.Rows()

	require.Len(t, rows, 5)
	assert.Equal(t, "applied", rows[0][3])
	assert.Equal(t, "NETWORK_ERROR: reset", rows[1][4])
	assert.Equal(t, "error", rows[2][3])
	assert.Contains(t, rows[2][4], "1 applied, 0 skipped, 0 deferred, 1 failed, 4 unchanged")
	assert.Equal(t, "coalesced", rows[3][3])
	assert.Equal(t, []string{"f3", "-", "-", "interrupted", "folder disabled before the pass started"}, rows[4])
}

func TestPassFailure(t *testing.T) {
	assert.NoError(t, passFailure(passReport{{FolderID: "f1", Status: types.StatusCompleted}, nil}))

	err := passFailure(passReport{
		{FolderID: "f1", Status: types.StatusCompleted},
		{FolderID: "f2", Status: types.StatusError},
	})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeSyncPartialFailure))
	var reported *reportedError
	assert.ErrorAs(t, err, &reported)
}

func TestAccountList_MarksActiveAndCredential(t *testing.T) {
	rows := accountList{
		{Account: types.Account{ID: "a1", IsActive: true}, HasCredential: true},
		{Account: types.Account{ID: "a2"}},
	}.Rows()

	assert.Equal(t, "*", rows[0][0])
	assert.Equal(t, "stored", rows[0][5])
	assert.Equal(t, "", rows[1][0])
	assert.Equal(t, "missing", rows[1][5])
}
