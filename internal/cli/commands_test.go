package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/docsync/internal/store"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Command string           `json:"command"`
	Data    json.RawMessage  `json:"data"`
	Errors  []types.CLIError `json:"errors"`
}

// resetFlags restores every flag to its default so runs do not leak into
// each other
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if slice, ok := f.Value.(pflag.SliceValue); ok {
			_ = slice.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

type cliFixture struct {
	t         *testing.T
	configDir string
	workDir   string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	f := &cliFixture{t: t, configDir: t.TempDir(), workDir: t.TempDir()}
	t.Setenv("DOCSYNC_CONFIG_DIR", f.configDir)
	t.Setenv("DOCSYNC_CREDENTIAL_STORAGE", "plain-file")
	return f
}

// run executes the command tree with --json and decodes the envelope
func (f *cliFixture) run(args ...string) (envelope, error) {
	f.t.Helper()
	globalFlags = types.GlobalFlags{}
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, "--json"))
	err := rootCmd.Execute()

	var env envelope
	require.NoError(f.t, json.Unmarshal(stdout.Bytes(), &env), "stdout: %s\nstderr: %s", stdout.String(), stderr.String())
	return env, err
}

func (f *cliFixture) must(args ...string) envelope {
	f.t.Helper()
	env, err := f.run(args...)
	require.NoError(f.t, err, "%s: %+v", strings.Join(args, " "), env.Errors)
	return env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (f *cliFixture) addAccount(name, email string) accountView {
	f.t.Helper()
	env := f.must("account", "add", "--server", "https://docs.example.com/", "--email", email, "--name", name, "--token", "secret-"+name)
	accounts := decode[[]accountView](f.t, env)
	require.Len(f.t, accounts, 1)
	return accounts[0]
}

func (f *cliFixture) addFolder(local, remoteID string, extra ...string) types.SyncFolder {
	f.t.Helper()
	args := append([]string{"folder", "add", filepath.Join(f.workDir, local), remoteID, "--skip-check"}, extra...)
	folders := decode[[]types.SyncFolder](f.t, f.must(args...))
	require.Len(f.t, folders, 1)
	return folders[0]
}

func TestAccountCommands(t *testing.T) {
	f := newCLIFixture(t)

	work := f.addAccount("Work", "me@example.com")
	assert.True(t, work.IsActive)
	assert.True(t, work.HasCredential)
	assert.Equal(t, "https://docs.example.com", work.ServerURL)

	home := f.addAccount("Home", "home@example.com")
	assert.False(t, home.IsActive)

	_, err := f.run("account", "add", "--server", "https://docs.example.com", "--email", "ME@example.com")
	assert.True(t, utils.IsCode(err, utils.ErrCodeDuplicateAccount), "got %v", err)

	f.must("account", "switch", "Home")
	listed := decode[[]accountView](t, f.must("account", "list"))
	require.Len(t, listed, 2)
	for _, a := range listed {
		assert.Equal(t, a.ID == home.ID, a.IsActive, a.DisplayName)
	}

	f.must("account", "login", "Work", "--token", "rotated")

	removed := decode[map[string]string](t, f.must("account", "remove", home.ID))
	assert.Equal(t, home.ID, removed["removed"])
	assert.Equal(t, work.ID, removed["active"])

	listed = decode[[]accountView](t, f.must("account", "list"))
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsActive)
}

func TestFolderCommands(t *testing.T) {
	f := newCLIFixture(t)
	f.addAccount("Work", "me@example.com")

	docs := f.addFolder("docs", "remote-1", "--remote-path", "/Docs")
	assert.Equal(t, types.StatusActive, docs.Status)
	assert.True(t, docs.IsEnabled)
	assert.Equal(t, types.PolicyCreateCopy, docs.ConflictResolution)

	paused := f.addFolder("paused", "remote-2", "--paused", "--direction", "pull")
	assert.Equal(t, types.StatusPaused, paused.Status)
	assert.Equal(t, types.DirectionDownloadOnly, paused.SyncDirection)

	env, err := f.run("folder", "add", filepath.Join(f.workDir, "docs", "nested"), "remote-3", "--skip-check")
	assert.True(t, utils.IsCode(err, utils.ErrCodePathCollision), "got %v", err)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, utils.ErrCodePathCollision, env.Errors[0].Code)

	_, err = f.run("folder", "add", filepath.Join(f.workDir, "other"), "remote-1", "--skip-check")
	assert.True(t, utils.IsCode(err, utils.ErrCodeDuplicateRemoteFolder), "got %v", err)

	updated := decode[[]types.SyncFolder](t, f.must("folder", "set", docs.ID, "--conflict", "ask-user"))
	assert.Equal(t, types.PolicyAskUser, updated[0].ConflictResolution)
	_, err = f.run("folder", "set", docs.ID)
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument), "got %v", err)

	disabled := decode[[]types.SyncFolder](t, f.must("folder", "disable", filepath.Join(f.workDir, "docs")))
	assert.Equal(t, types.StatusPaused, disabled[0].Status)
	assert.False(t, disabled[0].IsEnabled)

	_, err = f.run("sync", "run", docs.ID)
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidTransition), "got %v", err)

	status := decode[[]types.SyncFolder](t, f.must("sync", "status"))
	assert.Len(t, status, 2)

	f.must("folder", "remove", paused.ID)
	listed := decode[[]types.SyncFolder](t, f.must("folder", "list"))
	require.Len(t, listed, 1)
	assert.Equal(t, docs.ID, listed[0].ID)
}

func TestSyncDecisionCommands(t *testing.T) {
	f := newCLIFixture(t)
	f.addAccount("Work", "me@example.com")
	docs := f.addFolder("docs", "remote-1", "--conflict", "askUser")

	db, err := store.Open(filepath.Join(f.configDir, utils.DatabaseFileName))
	require.NoError(t, err)
	require.NoError(t, db.UpsertPendingDecision(context.Background(), types.PendingDecision{
		FolderID:      docs.ID,
		RelativePath:  "notes/a.txt",
		LocalSummary:  "12 bytes",
		RemoteSummary: "14 bytes, version 2",
		CreatedAt:     time.Now(),
	}))
	require.NoError(t, db.Close())

	pending := decode[[]types.PendingDecision](t, f.must("sync", "pending", docs.ID))
	require.Len(t, pending, 1)
	assert.Equal(t, "notes/a.txt", pending[0].RelativePath)
	assert.Empty(t, pending[0].Decision)

	_, err = f.run("sync", "decide", docs.ID, "notes/a.txt", "askUser")
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument), "got %v", err)
	_, err = f.run("sync", "decide", docs.ID, "missing.txt", "remoteWins")
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound), "got %v", err)

	f.must("sync", "decide", docs.ID, "notes/a.txt", "remote-wins")
	pending = decode[[]types.PendingDecision](t, f.must("sync", "pending"))
	require.Len(t, pending, 1)
	assert.Equal(t, types.PolicyRemoteWins, pending[0].Decision)
}

func TestConfigCommands(t *testing.T) {
	f := newCLIFixture(t)

	f.must("config", "set", "workers", "8")
	shown := decode[map[string]interface{}](t, f.must("config", "show"))
	assert.Equal(t, float64(8), shown["workers"])

	_, err := f.run("config", "set", "workers", "64")
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument), "got %v", err)

	f.must("config", "reset")
	shown = decode[map[string]interface{}](t, f.must("config", "show"))
	assert.Equal(t, float64(utils.DefaultWorkers), shown["workers"])

	path := decode[map[string]string](t, f.must("config", "path"))
	assert.Equal(t, f.configDir, path["configDir"])
}

func TestNoActiveAccount(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run("folder", "list")
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound), "got %v", err)
	assert.Equal(t, utils.ExitFileNotFound, utils.GetExitCode(utils.CodeOf(err)))
}
