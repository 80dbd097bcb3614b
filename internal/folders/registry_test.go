package folders

import (
	"context"
	"testing"

	"github.com/dl-alexandre/docsync/internal/store"
	testhelpers "github.com/dl-alexandre/docsync/internal/testing"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	locked      []string
	interrupted []string
	held        int
}

func (l *fakeLocker) LockFolder(ctx context.Context, folderID string, interrupt bool) (func(), error) {
	if interrupt {
		l.interrupted = append(l.interrupted, folderID)
	} else {
		l.locked = append(l.locked, folderID)
	}
	l.held++
	return func() { l.held-- }, nil
}

type fixture struct {
	db       *store.DB
	fs       afero.Fs
	locker   *fakeLocker
	registry *Registry
	account  types.Account
	other    types.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := testhelpers.TestContext()
	f := &fixture{
		db:     testhelpers.OpenTestStore(t),
		fs:     afero.NewMemMapFs(),
		locker: &fakeLocker{},
	}
	f.account = testhelpers.TestAccount("acct-1", "https://docs.example.com", "me@example.com")
	f.other = testhelpers.TestAccount("acct-2", "https://docs.example.com", "you@example.com")
	require.NoError(t, f.db.InsertAccount(ctx, f.account))
	require.NoError(t, f.db.InsertAccount(ctx, f.other))
	f.registry = NewRegistry(Options{Store: f.db, Locker: f.locker, Fs: f.fs})
	return f
}

func (f *fixture) create(accountID, remoteID, local string) (*types.SyncFolder, error) {
	return f.registry.Create(testhelpers.TestContext(), CreateRequest{
		AccountID:        accountID,
		RemoteFolderID:   remoteID,
		RemoteFolderPath: "/" + remoteID,
		LocalPath:        local,
	})
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)
	folder, err := f.create(f.account.ID, "remote-1", "/sync/work/../docs/")
	require.NoError(t, err)

	assert.Equal(t, "/sync/docs", folder.LocalPath)
	assert.Equal(t, types.StatusPaused, folder.Status)
	assert.False(t, folder.IsEnabled)
	assert.Equal(t, types.DirectionBidirectional, folder.SyncDirection)
	assert.Equal(t, types.PolicyCreateCopy, folder.ConflictResolution)

	stored, err := f.registry.Get(testhelpers.TestContext(), folder.ID)
	require.NoError(t, err)
	assert.Equal(t, folder.LocalPath, stored.LocalPath)
}

func TestCreate_Collisions(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		remoteID  string
		local     string
		code      string
	}{
		{"same local path", "acct-2", "remote-9", "/sync/docs", utils.ErrCodePathCollision},
		{"nested inside existing", "acct-2", "remote-9", "/sync/docs/sub", utils.ErrCodePathCollision},
		{"contains existing", "acct-2", "remote-9", "/sync", utils.ErrCodePathCollision},
		{"same remote folder", "acct-1", "remote-1", "/elsewhere", utils.ErrCodeDuplicateRemoteFolder},
		{"unknown account", "acct-x", "remote-9", "/elsewhere", utils.ErrCodeNotFound},
		{"missing remote id", "acct-1", "", "/elsewhere", utils.ErrCodeInvalidArgument},
		{"empty local path", "acct-1", "remote-9", "", utils.ErrCodeInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.create("acct-1", "remote-1", "/sync/docs")
			require.NoError(t, err)

			_, err = f.create(tt.accountID, tt.remoteID, tt.local)
			testhelpers.AssertCode(t, err, tt.code)

			all, err := f.registry.List(testhelpers.TestContext(), "")
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestCreate_AllowsSiblingsAndOtherAccounts(t *testing.T) {
	f := newFixture(t)
	_, err := f.create(f.account.ID, "remote-1", "/sync/docs")
	require.NoError(t, err)

	_, err = f.create(f.account.ID, "remote-2", "/sync/docs-archive")
	assert.NoError(t, err)
	// another account may sync a folder with the same remote id
	_, err = f.create(f.other.ID, "remote-1", "/sync/other")
	assert.NoError(t, err)

	mine, err := f.registry.List(testhelpers.TestContext(), f.account.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestCreate_RejectsFileAsLocalPath(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/sync/file.txt", []byte("x"), 0644))

	_, err := f.create(f.account.ID, "remote-1", "/sync/file.txt")
	testhelpers.AssertCode(t, err, utils.ErrCodeInvalidPath)
}

func TestCreate_RejectsUnknownSettings(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Create(testhelpers.TestContext(), CreateRequest{
		AccountID: f.account.ID, RemoteFolderID: "r", LocalPath: "/sync/a", Direction: "sideways",
	})
	testhelpers.AssertCode(t, err, utils.ErrCodeInvalidArgument)
}

func TestUpdate_ChangesSettingsUnderLock(t *testing.T) {
	f := newFixture(t)
	ctx := testhelpers.TestContext()
	folder, err := f.create(f.account.ID, "remote-1", "/sync/docs")
	require.NoError(t, err)
	require.NoError(t, f.db.UpsertEntry(ctx, types.SnapshotEntry{FolderID: folder.ID, RelativePath: "a.txt", RemoteID: "n1"}))

	direction := types.DirectionDownloadOnly
	policy := types.PolicyAskUser
	updated, err := f.registry.Update(ctx, folder.ID, Mutation{Direction: &direction, ConflictResolution: &policy})
	require.NoError(t, err)
	assert.Equal(t, direction, updated.SyncDirection)
	assert.Equal(t, policy, updated.ConflictResolution)
	assert.Equal(t, []string{folder.ID}, f.locker.locked)
	assert.Zero(t, f.locker.held)

	snapshot, err := f.db.Snapshot(ctx, folder.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot, 1, "settings changes keep the snapshot")

	moved := "/sync/moved"
	updated, err = f.registry.Update(ctx, folder.ID, Mutation{LocalPath: &moved})
	require.NoError(t, err)
	assert.Equal(t, moved, updated.LocalPath)
	snapshot, err = f.db.Snapshot(ctx, folder.ID)
	require.NoError(t, err)
	assert.Empty(t, snapshot, "moving the local path starts from scratch")
}

func TestUpdate_RejectsCollisionAndBadPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := testhelpers.TestContext()
	first, err := f.create(f.account.ID, "remote-1", "/sync/docs")
	require.NoError(t, err)
	_, err = f.create(f.account.ID, "remote-2", "/sync/other")
	require.NoError(t, err)

	into := "/sync/other/nested"
	_, err = f.registry.Update(ctx, first.ID, Mutation{LocalPath: &into})
	testhelpers.AssertCode(t, err, utils.ErrCodePathCollision)

	// keeping its own path is not a collision
	same := "/sync/docs"
	_, err = f.registry.Update(ctx, first.ID, Mutation{LocalPath: &same})
	assert.NoError(t, err)

	bad := types.ConflictPolicy("coinFlip")
	_, err = f.registry.Update(ctx, first.ID, Mutation{ConflictResolution: &bad})
	testhelpers.AssertCode(t, err, utils.ErrCodeInvalidArgument)

	_, err = f.registry.Update(ctx, "missing", Mutation{})
	testhelpers.AssertCode(t, err, utils.ErrCodeNotFound)
}

func TestRemove_InterruptsAndKeepsContent(t *testing.T) {
	f := newFixture(t)
	ctx := testhelpers.TestContext()
	require.NoError(t, afero.WriteFile(f.fs, "/sync/docs/a.txt", []byte("keep"), 0644))
	folder, err := f.create(f.account.ID, "remote-1", "/sync/docs")
	require.NoError(t, err)

	require.NoError(t, f.registry.Remove(ctx, folder.ID))
	assert.Equal(t, []string{folder.ID}, f.locker.interrupted)
	assert.Zero(t, f.locker.held)

	_, err = f.registry.Get(ctx, folder.ID)
	testhelpers.AssertCode(t, err, utils.ErrCodeNotFound)
	exists, err := afero.Exists(f.fs, "/sync/docs/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	// the path is free again
	_, err = f.create(f.account.ID, "remote-1", "/sync/docs")
	assert.NoError(t, err)
}

func TestResolve_ByIDOrPath(t *testing.T) {
	f := newFixture(t)
	ctx := testhelpers.TestContext()
	folder, err := f.create(f.account.ID, "remote-1", "/sync/docs")
	require.NoError(t, err)

	byID, err := f.registry.Resolve(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, folder.ID, byID.ID)

	byPath, err := f.registry.Resolve(ctx, "/sync/docs/")
	require.NoError(t, err)
	assert.Equal(t, folder.ID, byPath.ID)

	_, err = f.registry.Resolve(ctx, "/nowhere")
	testhelpers.AssertCode(t, err, utils.ErrCodeNotFound)
}

func TestWithin(t *testing.T) {
	tests := []struct {
		child, parent string
		want          bool
	}{
		{"/a/b", "/a", true},
		{"/a", "/a", true},
		{"/ab", "/a", false},
		{"/a", "/a/b", false},
		{"/x/..y", "/x", true},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.child, tt.parent), "%s in %s", tt.child, tt.parent)
	}
}
