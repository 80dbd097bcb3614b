// Package accounts keeps the set of remote identities and which one is active.
package accounts

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/store"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store is the persistence the registry needs
type Store interface {
	InsertAccount(ctx context.Context, a types.Account) error
	GetAccount(ctx context.Context, id string) (*types.Account, error)
	FindAccount(ctx context.Context, serverURL, email string) (*types.Account, error)
	ListAccounts(ctx context.Context) ([]types.Account, error)
	SetActiveAccount(ctx context.Context, id string) error
	DeleteAccount(ctx context.Context, id string) error
	ListFoldersByAccount(ctx context.Context, accountID string) ([]types.SyncFolder, error)
}

var _ Store = (*store.DB)(nil)

// Vault forgets an account's stored credential
type Vault interface {
	Revoke(accountKey string) error
}

// Gate is the part of the sync engine that account changes wait on
type Gate interface {
	Quiesce(ctx context.Context, accountID string) (func(), error)
	LockFolder(ctx context.Context, folderID string, interrupt bool) (func(), error)
}

// Options configures a Registry
type Options struct {
	Store  Store
	Vault  Vault
	Gate   Gate
	Logger logging.Logger
	Clock  clockwork.Clock
}

// Registry adds, switches and removes accounts. Changes to the active
// account are serialized by the registry lock.
type Registry struct {
	mu     sync.Mutex
	store  Store
	vault  Vault
	gate   Gate
	logger logging.Logger
	clock  clockwork.Clock
}

func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Registry{
		store:  opts.Store,
		vault:  opts.Vault,
		gate:   opts.Gate,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
}

// Add registers a new account. The first account, or any account added
// while none is active, becomes active.
func (r *Registry) Add(ctx context.Context, displayName, serverURL, email string) (*types.Account, error) {
	serverURL = types.NormalizeServerURL(serverURL)
	email = types.NormalizeEmail(email)
	if err := validate(serverURL, email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = email
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.FindAccount(ctx, serverURL, email); err == nil {
		return nil, utils.NewCLIError(utils.ErrCodeDuplicateAccount, "account already exists").
			WithContext("serverUrl", serverURL).
			WithContext("email", email).
			Err()
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	existing, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	active := false
	for _, a := range existing {
		active = active || a.IsActive
	}

	account := types.Account{
		ID:          uuid.New().String(),
		DisplayName: strings.TrimSpace(displayName),
		ServerURL:   serverURL,
		Email:       email,
		IsActive:    !active,
		CreatedAt:   r.clock.Now(),
	}
	if err := r.store.InsertAccount(ctx, account); err != nil {
		return nil, err
	}

	r.logger.Info("account added",
		logging.F("accountId", account.ID),
		logging.F("serverUrl", serverURL),
		logging.F("active", account.IsActive),
	)
	return &account, nil
}

func validate(serverURL, email string) error {
	u, err := url.Parse(serverURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "server URL must be an absolute http(s) URL").
			WithContext("serverUrl", serverURL).
			Err()
	}
	if email == "" || !strings.Contains(email, "@") {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "email address is required").
			WithContext("email", email).
			Err()
	}
	return nil
}

// List returns every account, oldest first
func (r *Registry) List(ctx context.Context) ([]types.Account, error) {
	return r.store.ListAccounts(ctx)
}

func (r *Registry) Get(ctx context.Context, id string) (*types.Account, error) {
	account, err := r.store.GetAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("accountId", id)
	}
	return account, err
}

// Active returns the active account
func (r *Registry) Active(ctx context.Context) (*types.Account, error) {
	all, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.IsActive {
			return &a, nil
		}
	}
	return nil, utils.NewCLIError(utils.ErrCodeNotFound, "no active account").Err()
}

// Resolve finds an account by id, email or display name
func (r *Registry) Resolve(ctx context.Context, ref string) (*types.Account, error) {
	ref = strings.TrimSpace(ref)
	all, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var matches []types.Account
	for _, a := range all {
		if a.ID == ref {
			return &a, nil
		}
		if a.Email == types.NormalizeEmail(ref) || strings.EqualFold(a.DisplayName, ref) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return nil, notFound("account", ref)
	case 1:
		return &matches[0], nil
	}
	return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, "account reference is ambiguous, use the id").
		WithContext("account", ref).
		Err()
}

// SwitchActive makes id the active account. Passes of the previously
// active account are held at a checkpoint while the switch happens.
func (r *Registry) SwitchActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if target.IsActive {
		return nil
	}

	current, err := r.Active(ctx)
	if err != nil && !utils.IsCode(err, utils.ErrCodeNotFound) {
		return err
	}
	if current != nil && r.gate != nil {
		release, err := r.gate.Quiesce(ctx, current.ID)
		if err != nil {
			return err
		}
		defer release()
	}

	if err := r.store.SetActiveAccount(ctx, target.ID); err != nil {
		return err
	}

	fields := []logging.Field{logging.F("accountId", target.ID)}
	if current != nil {
		fields = append(fields, logging.F("previousAccountId", current.ID))
	}
	r.logger.Info("active account switched", fields...)
	return nil
}

// Remove deletes an account with its sync folder records and revokes its
// credential. Running passes of the account are stopped first. Local and
// remote content is left alone. When the removed account was active, the
// most recently created remaining account is promoted and returned.
func (r *Registry) Remove(ctx context.Context, id string) (*types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	folders, err := r.store.ListFoldersByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if r.gate != nil {
		for _, f := range folders {
			release, err := r.gate.LockFolder(ctx, f.ID, true)
			if err != nil {
				return nil, err
			}
			defer release()
		}
		release, err := r.gate.Quiesce(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := r.vault.Revoke(account.Key()); err != nil {
		return nil, err
	}
	if err := r.store.DeleteAccount(ctx, account.ID); err != nil {
		return nil, err
	}
	r.logger.Info("account removed",
		logging.F("accountId", account.ID),
		logging.F("folders", len(folders)),
	)

	if !account.IsActive {
		return nil, nil
	}
	return r.promote(ctx)
}

// promote activates the most recently created account, if any is left
func (r *Registry) promote(ctx context.Context) (*types.Account, error) {
	remaining, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		return nil, nil
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		if !remaining[i].CreatedAt.Equal(remaining[j].CreatedAt) {
			return remaining[i].CreatedAt.After(remaining[j].CreatedAt)
		}
		return remaining[i].ID > remaining[j].ID
	})
	next := remaining[0]
	if err := r.store.SetActiveAccount(ctx, next.ID); err != nil {
		return nil, err
	}
	next.IsActive = true
	r.logger.Info("account promoted to active", logging.F("accountId", next.ID))
	return &next, nil
}

func notFound(key, value string) error {
	return utils.NewCLIError(utils.ErrCodeNotFound, "account not found").
		WithContext(key, value).
		Err()
}
