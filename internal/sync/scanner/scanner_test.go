package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/dl-alexandre/docsync/internal/api"
	"github.com/dl-alexandre/docsync/internal/sync/exclude"
	"github.com/dl-alexandre/docsync/internal/sync/integrity"
	testhelpers "github.com/dl-alexandre/docsync/internal/testing"
	"github.com/dl-alexandre/docsync/internal/testing/mocks"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/afero"
)

func TestScanLocal(t *testing.T) {
	fs := afero.NewMemMapFs()
	validator := integrity.MustNew(integrity.MD5)
	files := map[string]string{
		"/sync/a.txt":      "hello",
		"/sync/docs/b.txt": "bee",
		"/sync/.DS_Store":  "junk",
		"/sync/docs/" + utils.TempFilePrefix + "x": "partial",
	}
	for p, content := range files {
		if err := afero.WriteFile(fs, p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := fs.MkdirAll("/sync/empty", 0755); err != nil {
		t.Fatal(err)
	}

	entries, err := ScanLocal(context.Background(), fs, "/sync", exclude.New(nil), validator, nil)
	testhelpers.AssertNoError(t, err, "ScanLocal")

	if len(entries) != 4 {
		t.Fatalf("expected a.txt, docs, docs/b.txt, empty; got %v", keys(entries))
	}
	if entries["a.txt"].Checksum != validator.ComputeBytes([]byte("hello")) || entries["a.txt"].Size != 5 {
		t.Errorf("unexpected a.txt entry: %+v", entries["a.txt"])
	}
	if !entries["docs"].IsDir || !entries["empty"].IsDir {
		t.Error("expected directories to be reported")
	}
	if _, ok := entries["docs/"+utils.TempFilePrefix+"x"]; ok {
		t.Error("temp files must be excluded")
	}
}

func TestScanLocal_ReusesChecksumWhenUnchanged(t *testing.T) {
	fs := afero.NewMemMapFs()
	validator := integrity.MustNew(integrity.SHA256)
	if err := afero.WriteFile(fs, "/sync/a.txt", []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := fs.Chtimes("/sync/a.txt", mtime, mtime); err != nil {
		t.Fatal(err)
	}

	prev := map[string]types.SnapshotEntry{
		"a.txt": {RelativePath: "a.txt", Checksum: "cached", LocalSize: 5, LocalModTime: mtime.UnixNano()},
	}
	entries, err := ScanLocal(context.Background(), fs, "/sync", nil, validator, prev)
	testhelpers.AssertNoError(t, err, "ScanLocal")
	if entries["a.txt"].Checksum != "cached" {
		t.Errorf("expected cached checksum, got %s", entries["a.txt"].Checksum)
	}

	prev["a.txt"] = types.SnapshotEntry{RelativePath: "a.txt", Checksum: "cached", LocalSize: 5, LocalModTime: mtime.Add(time.Second).UnixNano()}
	entries, err = ScanLocal(context.Background(), fs, "/sync", nil, validator, prev)
	testhelpers.AssertNoError(t, err, "ScanLocal")
	if entries["a.txt"].Checksum != validator.ComputeBytes([]byte("hello")) {
		t.Errorf("expected recomputed checksum, got %s", entries["a.txt"].Checksum)
	}
}

func TestListTree(t *testing.T) {
	svc := mocks.NewService(integrity.MustNew(integrity.MD5))
	top := svc.AddFolder(mocks.RootID, "Top")
	svc.AddFile(top.ID, "a.txt", []byte("a"))
	sub := svc.AddFolder(top.ID, "sub")
	svc.AddFile(sub.ID, "b.txt", []byte("b"))
	svc.AddFile(top.ID, "locked.txt", []byte("x"), types.CapEditDocumentContent)
	hidden := svc.AddFolder(top.ID, "hidden", types.CapCreateDocument)
	svc.AddFile(hidden.ID, "inner.txt", []byte("i"))
	svc.AddFile(top.ID, "dup.txt", []byte("1"))
	svc.AddFile(top.ID, "dup.txt", []byte("2"))

	client := api.NewClient("test", 0, 0, nil)
	tree, err := NewRemoteScanner(client).ListTree(context.Background(), svc, "tok", testhelpers.TestRequestContext(), top.ID)
	testhelpers.AssertNoError(t, err, "ListTree")

	for _, p := range []string{"a.txt", "sub", "sub/b.txt"} {
		if _, ok := tree.Nodes[p]; !ok {
			t.Errorf("expected %s in tree, got %v", p, tree.Nodes)
		}
	}
	if len(tree.Nodes) != 3 {
		t.Errorf("unexpected nodes: %v", tree.Nodes)
	}
	if tree.Denied["locked.txt"] != "permission denied: missing download_document" {
		t.Errorf("locked.txt reason = %q", tree.Denied["locked.txt"])
	}
	if tree.Denied["hidden"] != "permission denied: missing list_folder_content" {
		t.Errorf("hidden reason = %q", tree.Denied["hidden"])
	}
	if tree.Denied["dup.txt"] == "" {
		t.Error("duplicate names should be denied")
	}
	if _, ok := tree.Nodes["hidden/inner.txt"]; ok {
		t.Error("children of untraversable folders must not be listed")
	}

	ids := tree.FolderIDs()
	if ids[""] != top.ID || ids["sub"] != sub.ID {
		t.Errorf("FolderIDs() = %v", ids)
	}
}

func TestListTree_RootErrors(t *testing.T) {
	svc := mocks.NewService(integrity.MustNew(integrity.MD5))
	file := svc.AddFile(mocks.RootID, "f.txt", []byte("x"))
	closed := svc.AddFolder(mocks.RootID, "closed", types.CapCreateDocument)
	scanner := NewRemoteScanner(api.NewClient("test", 0, 0, nil))
	ctx := context.Background()

	_, err := scanner.ListTree(ctx, svc, "tok", testhelpers.TestRequestContext(), file.ID)
	testhelpers.AssertCode(t, err, utils.ErrCodeInvalidArgument)

	_, err = scanner.ListTree(ctx, svc, "tok", testhelpers.TestRequestContext(), closed.ID)
	testhelpers.AssertCode(t, err, utils.ErrCodePermissionDenied)

	_, err = scanner.ListTree(ctx, svc, "tok", testhelpers.TestRequestContext(), "missing")
	testhelpers.AssertCode(t, err, utils.ErrCodeFileNotFound)
}

func TestListTree_RetriesTransientFailures(t *testing.T) {
	svc := mocks.NewService(integrity.MustNew(integrity.MD5))
	svc.AddFile(mocks.RootID, "a.txt", []byte("a"))
	svc.FailNext(mocks.OpListChildren, mocks.NetworkFailure(), 2)

	client := api.NewClient("test", 3, 0, nil)
	tree, err := NewRemoteScanner(client).ListTree(context.Background(), svc, "tok", testhelpers.TestRequestContext(), mocks.RootID)
	testhelpers.AssertNoError(t, err, "ListTree")
	if _, ok := tree.Nodes["a.txt"]; !ok {
		t.Error("expected a.txt after retries")
	}
	if got := svc.Calls(mocks.OpListChildren); got != 3 {
		t.Errorf("ListChildren calls = %d, want 3", got)
	}
}

func keys(m map[string]types.LocalNode) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
