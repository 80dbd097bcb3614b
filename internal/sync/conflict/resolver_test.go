package conflict

import (
	"testing"
	"time"

	"github.com/dl-alexandre/docsync/internal/sync/diff"
	"github.com/dl-alexandre/docsync/internal/types"
)

var (
	editable = []string{types.CapDownloadDocument, types.CapEditDocumentContent, types.CapDeleteDocument}
	updated  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func sides(localSum, remoteSum string) (*types.LocalNode, *types.RemoteNode, *types.SnapshotEntry) {
	local := &types.LocalNode{RelativePath: "docs/report.txt", Checksum: localSum}
	remote := &types.RemoteNode{ID: "r1", Name: "report.txt", Kind: types.KindFile, Checksum: remoteSum, Version: "2", Permissions: editable, UpdatedAt: updated}
	base := &types.SnapshotEntry{RelativePath: "docs/report.txt", RemoteID: "r1", RemoteVersion: "1", Checksum: "base"}
	return local, remote, base
}

func TestResolve_Policies(t *testing.T) {
	tests := []struct {
		policy   types.ConflictPolicy
		action   diff.Action
		copyPath string
		original bool
	}{
		{types.PolicyRemoteWins, diff.ActionDownloadUpdate, "", false},
		{types.PolicyLocalWins, diff.ActionUploadUpdate, "", false},
		{types.PolicyCreateCopy, diff.ActionDownloadNew, "docs/report (remote copy 20260301-120000).txt", true},
		{types.PolicyAskUser, diff.ActionPendingDecision, "", false},
		{types.ConflictPolicy("bogus"), diff.ActionPendingDecision, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			local, remote, base := sides("L", "R")
			res := Resolve(local, remote, base, tt.policy)
			if res.Action != tt.action {
				t.Errorf("action = %s, want %s", res.Action, tt.action)
			}
			if res.CopyPath != tt.copyPath {
				t.Errorf("copy path = %q, want %q", res.CopyPath, tt.copyPath)
			}
			if res.UploadOriginal != tt.original {
				t.Errorf("upload original = %v, want %v", res.UploadOriginal, tt.original)
			}
			if res.Policy != tt.policy {
				t.Errorf("policy = %s, want %s", res.Policy, tt.policy)
			}
		})
	}
}

func TestResolve_IdenticalChecksumsCollapse(t *testing.T) {
	for _, policy := range []types.ConflictPolicy{types.PolicyRemoteWins, types.PolicyLocalWins, types.PolicyCreateCopy, types.PolicyAskUser} {
		local, remote, base := sides("abc", "ABC")
		if res := Resolve(local, remote, base, policy); res.Action != diff.ActionNone {
			t.Errorf("%s: action = %s, want none", policy, res.Action)
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	local, remote, base := sides("L", "R")
	first := Resolve(local, remote, base, types.PolicyCreateCopy)
	for i := 0; i < 10; i++ {
		if got := Resolve(local, remote, base, types.PolicyCreateCopy); got != first {
			t.Fatalf("run %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestCopyPath(t *testing.T) {
	tests := []struct {
		rel  string
		at   time.Time
		want string
	}{
		{"report.txt", updated, "report (remote copy 20260301-120000).txt"},
		{"a/b/archive.tar.gz", updated, "a/b/archive.tar (remote copy 20260301-120000).gz"},
		{"Makefile", time.Time{}, "Makefile (remote copy)"},
		{".bashrc", updated, ".bashrc (remote copy 20260301-120000)"},
	}
	for _, tt := range tests {
		if got := CopyPath(tt.rel, tt.at); got != tt.want {
			t.Errorf("CopyPath(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func conflictPlan(policy types.ConflictPolicy, decisions map[string]types.ConflictPolicy) *diff.Plan {
	local, remote, base := sides("L", "R")
	plan := diff.Compute(diff.Input{
		FolderID:  "f1",
		Direction: types.DirectionBidirectional,
		Root: types.RemoteNode{ID: "root", Kind: types.KindFolder, Permissions: []string{
			types.CapListFolderContent, types.CapCreateDocument,
		}},
		Snapshot: map[string]types.SnapshotEntry{base.RelativePath: *base},
		Local:    map[string]types.LocalNode{local.RelativePath: *local},
		Remote:   map[string]types.RemoteNode{local.RelativePath: *remote},
	})
	ResolvePlan(plan, policy, decisions)
	return plan
}

func TestResolvePlan_FolderPolicy(t *testing.T) {
	plan := conflictPlan(types.PolicyAskUser, nil)
	if len(plan.Items) != 1 {
		t.Fatalf("items = %+v", plan.Items)
	}
	if got := plan.Items[0].Effective(); got != diff.ActionPendingDecision {
		t.Errorf("effective = %s, want pendingDecision", got)
	}
}

func TestResolvePlan_DecisionOverridesPolicy(t *testing.T) {
	plan := conflictPlan(types.PolicyAskUser, map[string]types.ConflictPolicy{
		"docs/report.txt": types.PolicyLocalWins,
	})
	item := plan.Items[0]
	if item.Effective() != diff.ActionUploadUpdate {
		t.Errorf("effective = %s, want uploadUpdate", item.Effective())
	}
	if item.Resolution.Policy != types.PolicyLocalWins {
		t.Errorf("policy = %s, want localWins", item.Resolution.Policy)
	}
}

func TestResolvePlan_UndecidedEntryIgnored(t *testing.T) {
	plan := conflictPlan(types.PolicyRemoteWins, map[string]types.ConflictPolicy{
		"docs/report.txt": types.PolicyAskUser,
	})
	if got := plan.Items[0].Effective(); got != diff.ActionDownloadUpdate {
		t.Errorf("effective = %s, want downloadUpdate", got)
	}
}
