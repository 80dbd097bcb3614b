// Package folders keeps the sync folder configurations and their
// uniqueness rules.
package folders

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/store"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// Store is the persistence the registry needs
type Store interface {
	GetAccount(ctx context.Context, id string) (*types.Account, error)
	InsertFolder(ctx context.Context, f types.SyncFolder) error
	GetFolder(ctx context.Context, id string) (*types.SyncFolder, error)
	ListFolders(ctx context.Context) ([]types.SyncFolder, error)
	ListFoldersByAccount(ctx context.Context, accountID string) ([]types.SyncFolder, error)
	UpdateFolder(ctx context.Context, f types.SyncFolder) error
	DeleteFolder(ctx context.Context, id string) error
	ReplaceEntries(ctx context.Context, folderID string, entries []types.SnapshotEntry) error
}

var _ Store = (*store.DB)(nil)

// Locker grants exclusive access to a folder record while no pass runs
type Locker interface {
	LockFolder(ctx context.Context, folderID string, interrupt bool) (func(), error)
}

// Options configures a Registry
type Options struct {
	Store  Store
	Locker Locker
	Fs     afero.Fs
	Logger logging.Logger
	Clock  clockwork.Clock
}

// Registry creates, changes and removes sync folders
type Registry struct {
	mu     sync.Mutex
	store  Store
	locker Locker
	fs     afero.Fs
	logger logging.Logger
	clock  clockwork.Clock
}

func NewRegistry(opts Options) *Registry {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Registry{
		store:  opts.Store,
		locker: opts.Locker,
		fs:     opts.Fs,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
}

// CreateRequest describes a new sync folder
type CreateRequest struct {
	AccountID        string
	RemoteFolderID   string
	RemoteFolderPath string
	LocalPath        string
	Direction        types.SyncDirection
	Policy           types.ConflictPolicy
}

// Create registers a folder in the paused state. It fails with
// PATH_COLLISION when the local path equals or nests with another folder's
// and with DUPLICATE_REMOTE_FOLDER when the account already syncs the
// remote folder.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*types.SyncFolder, error) {
	if _, err := r.store.GetAccount(ctx, req.AccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.NewCLIError(utils.ErrCodeNotFound, "account not found").
				WithContext("accountId", req.AccountID).
				Err()
		}
		return nil, err
	}
	if strings.TrimSpace(req.RemoteFolderID) == "" {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, "remote folder id is required").Err()
	}
	if req.Direction == "" {
		req.Direction = types.DirectionBidirectional
	}
	if req.Policy == "" {
		req.Policy = types.PolicyCreateCopy
	}
	if err := validateSettings(req.Direction, req.Policy); err != nil {
		return nil, err
	}
	localPath, err := r.normalizeLocal(req.LocalPath)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range existing {
		if f.AccountID == req.AccountID && f.RemoteFolderID == req.RemoteFolderID {
			return nil, utils.NewCLIError(utils.ErrCodeDuplicateRemoteFolder, "remote folder is already synced for this account").
				WithContext("remoteFolderId", req.RemoteFolderID).
				WithContext("folderId", f.ID).
				Err()
		}
	}
	if err := checkCollision(existing, "", localPath); err != nil {
		return nil, err
	}

	folder := types.SyncFolder{
		ID:                 uuid.New().String(),
		AccountID:          req.AccountID,
		RemoteFolderID:     req.RemoteFolderID,
		RemoteFolderPath:   req.RemoteFolderPath,
		LocalPath:          localPath,
		Status:             types.StatusPaused,
		SyncDirection:      req.Direction,
		ConflictResolution: req.Policy,
		CreatedAt:          r.clock.Now(),
	}
	if err := r.store.InsertFolder(ctx, folder); err != nil {
		return nil, err
	}

	r.logger.Info("sync folder created",
		logging.F("folderId", folder.ID),
		logging.F("accountId", folder.AccountID),
		logging.F("localPath", folder.LocalPath),
	)
	return &folder, nil
}

// Mutation lists the settings Update may change. Nil fields are kept.
type Mutation struct {
	LocalPath          *string
	RemoteFolderPath   *string
	Direction          *types.SyncDirection
	ConflictResolution *types.ConflictPolicy
}

// Update changes folder settings once any running pass has finished.
// Moving the local path discards the snapshot so the next pass compares
// the new directory from scratch instead of reading missing files as
// deletions.
func (r *Registry) Update(ctx context.Context, id string, m Mutation) (*types.SyncFolder, error) {
	release, err := r.locker.LockFolder(ctx, id, false)
	if err != nil {
		return nil, err
	}
	defer release()

	r.mu.Lock()
	defer r.mu.Unlock()

	folder, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.Direction != nil {
		folder.SyncDirection = *m.Direction
	}
	if m.ConflictResolution != nil {
		folder.ConflictResolution = *m.ConflictResolution
	}
	if err := validateSettings(folder.SyncDirection, folder.ConflictResolution); err != nil {
		return nil, err
	}
	if m.RemoteFolderPath != nil {
		folder.RemoteFolderPath = *m.RemoteFolderPath
	}

	moved := false
	if m.LocalPath != nil {
		localPath, err := r.normalizeLocal(*m.LocalPath)
		if err != nil {
			return nil, err
		}
		if localPath != folder.LocalPath {
			existing, err := r.store.ListFolders(ctx)
			if err != nil {
				return nil, err
			}
			if err := checkCollision(existing, folder.ID, localPath); err != nil {
				return nil, err
			}
			folder.LocalPath = localPath
			moved = true
		}
	}

	if err := r.store.UpdateFolder(ctx, *folder); err != nil {
		return nil, err
	}
	if moved {
		if err := r.store.ReplaceEntries(ctx, folder.ID, nil); err != nil {
			return nil, err
		}
	}

	r.logger.Info("sync folder updated",
		logging.F("folderId", folder.ID),
		logging.F("direction", string(folder.SyncDirection)),
		logging.F("policy", string(folder.ConflictResolution)),
		logging.F("moved", moved),
	)
	return folder, nil
}

// Remove deletes the folder record and its snapshot, stopping a running
// pass first. Synced content is never touched.
func (r *Registry) Remove(ctx context.Context, id string) error {
	release, err := r.locker.LockFolder(ctx, id, true)
	if err != nil {
		return err
	}
	defer release()

	r.mu.Lock()
	defer r.mu.Unlock()

	folder, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteFolder(ctx, folder.ID); err != nil {
		return err
	}
	r.logger.Info("sync folder removed", logging.F("folderId", folder.ID), logging.F("localPath", folder.LocalPath))
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (*types.SyncFolder, error) {
	folder, err := r.store.GetFolder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, utils.NewCLIError(utils.ErrCodeNotFound, "sync folder not found").
			WithContext("folderId", id).
			Err()
	}
	return folder, err
}

// List returns the folders of one account, or all folders when accountID
// is empty
func (r *Registry) List(ctx context.Context, accountID string) ([]types.SyncFolder, error) {
	if accountID == "" {
		return r.store.ListFolders(ctx)
	}
	return r.store.ListFoldersByAccount(ctx, accountID)
}

// Resolve finds a folder by id or by local path
func (r *Registry) Resolve(ctx context.Context, ref string) (*types.SyncFolder, error) {
	folder, err := r.Get(ctx, ref)
	if err == nil || !utils.IsCode(err, utils.ErrCodeNotFound) {
		return folder, err
	}
	localPath, pathErr := r.normalizeLocal(ref)
	if pathErr != nil {
		return nil, err
	}
	all, listErr := r.store.ListFolders(ctx)
	if listErr != nil {
		return nil, listErr
	}
	for _, f := range all {
		if f.LocalPath == localPath {
			return &f, nil
		}
	}
	return nil, err
}

// normalizeLocal expands ~ and makes the path absolute. An existing
// non-directory is rejected.
func (r *Registry) normalizeLocal(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", utils.NewCLIError(utils.ErrCodeInvalidPath, "local path is required").Err()
	}
	expanded, err := homedir.Expand(strings.TrimSpace(raw))
	if err != nil {
		return "", invalidPath(raw, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", invalidPath(raw, err)
	}
	abs = filepath.Clean(abs)

	info, err := r.fs.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		return "", utils.NewCLIError(utils.ErrCodeInvalidPath, "local path is not a directory").
			WithContext("localPath", abs).
			Err()
	case err != nil && !os.IsNotExist(err):
		return "", invalidPath(raw, err)
	}
	return abs, nil
}

func invalidPath(raw string, cause error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, "invalid local path").
		WithContext("localPath", raw).
		Build(), cause)
}

func validateSettings(direction types.SyncDirection, policy types.ConflictPolicy) error {
	if !direction.Valid() {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "unknown sync direction").
			WithContext("direction", string(direction)).
			Err()
	}
	if !policy.Valid() {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "unknown conflict policy").
			WithContext("policy", string(policy)).
			Err()
	}
	return nil
}

// checkCollision rejects localPath when it equals, contains or lies inside
// the local path of any folder other than skipID
func checkCollision(existing []types.SyncFolder, skipID, localPath string) error {
	for _, f := range existing {
		if f.ID == skipID {
			continue
		}
		if within(localPath, f.LocalPath) || within(f.LocalPath, localPath) {
			return utils.NewCLIError(utils.ErrCodePathCollision, "local path overlaps another sync folder").
				WithContext("localPath", localPath).
				WithContext("folderId", f.ID).
				WithContext("existingPath", f.LocalPath).
				Err()
		}
	}
	return nil
}

// within reports whether child is parent or lies below it
func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
