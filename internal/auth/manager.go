package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const tokenRefreshBuffer = 5 * time.Minute

// CredentialContext resolves the secret used to talk to an account's server
type CredentialContext interface {
	ResolveToken(ctx context.Context, accountKey string) (string, error)
}

// StoredToken is the vault record for one account
type StoredToken struct {
	AccountKey string        `json:"accountKey"`
	Token      *oauth2.Token `json:"token"`
	ClientID   string        `json:"clientId,omitempty"`
	TokenURL   string        `json:"tokenUrl,omitempty"`
	Scopes     []string      `json:"scopes,omitempty"`
}

// Manager is the credential vault. It implements CredentialContext.
type Manager struct {
	mu             sync.Mutex
	configDir      string
	storage        StorageBackend
	clock          clockwork.Clock
	storageWarning string
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	// Backend is auto, keyring, encrypted-file or plain-file
	Backend     string
	ServiceName string
	Clock       clockwork.Clock
}

// NewManager creates a manager with automatic backend selection
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// NewManagerWithOptions creates a new auth manager with specific options
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	if opts.ServiceName == "" {
		opts.ServiceName = utils.KeyringService
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	mgr := &Manager{
		configDir: configDir,
		clock:     opts.Clock,
	}

	switch opts.Backend {
	case "plain-file":
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	case "keyring":
		mgr.storage = NewKeyringStorage(opts.ServiceName, configDir)
	case "encrypted-file":
		mgr.useEncryptedFile(false)
	default:
		if checkKeyringAvailable(opts.ServiceName) {
			mgr.storage = NewKeyringStorage(opts.ServiceName, configDir)
		} else {
			mgr.useEncryptedFile(true)
		}
	}

	return mgr
}

func (m *Manager) useEncryptedFile(fallback bool) {
	storage, err := NewEncryptedFileStorage(m.configDir)
	if err != nil {
		m.storage = NewPlainFileStorage(m.configDir)
		m.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
		return
	}
	m.storage = storage
	if fallback {
		m.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
	}
}

// checkKeyringAvailable tests if system keyring is available
func checkKeyringAvailable(serviceName string) bool {
	testKey := serviceName + "-availability-check"
	if err := keyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

// SaveToken stores a token record for an account key
func (m *Manager) SaveToken(accountKey string, stored StoredToken) error {
	if stored.Token == nil || stored.Token.AccessToken == "" {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "token must not be empty").Err()
	}
	stored.AccountKey = accountKey

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storage.Save(storageName(accountKey), data)
}

// SaveAccessToken stores a bare access token with no expiry or refresh
func (m *Manager) SaveAccessToken(accountKey, accessToken string) error {
	return m.SaveToken(accountKey, StoredToken{
		Token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"},
	})
}

// LoadToken returns the stored record for an account key
func (m *Manager) LoadToken(accountKey string) (*StoredToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(accountKey)
}

func (m *Manager) load(accountKey string) (*StoredToken, error) {
	data, err := m.storage.Load(storageName(accountKey))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, utils.NewCLIError(utils.ErrCodeNoCredential,
				"No credential stored for this account. Run 'docsync account login' first.").
				WithContext("accountKey", accountKey).
				Err()
		}
		return nil, err
	}

	var stored StoredToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if stored.Token == nil {
		return nil, utils.NewCLIError(utils.ErrCodeNoCredential, "stored credential is empty").
			WithContext("accountKey", accountKey).
			Err()
	}
	return &stored, nil
}

// NeedsRefresh checks whether a token expires within the refresh buffer
func (m *Manager) NeedsRefresh(token *oauth2.Token) bool {
	if token.Expiry.IsZero() {
		return false
	}
	return m.clock.Now().Add(tokenRefreshBuffer).After(token.Expiry)
}

// ResolveToken returns a usable access token for the account key, refreshing
// it when it is about to expire and a refresh token is available
func (m *Manager) ResolveToken(ctx context.Context, accountKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.load(accountKey)
	if err != nil {
		return "", err
	}
	if !m.NeedsRefresh(stored.Token) {
		return stored.Token.AccessToken, nil
	}

	expired := m.clock.Now().After(stored.Token.Expiry)
	if stored.Token.RefreshToken == "" || stored.TokenURL == "" {
		if expired {
			return "", utils.NewCLIError(utils.ErrCodeAuthExpired,
				"Token expired. Run 'docsync account login' to re-authenticate.").
				WithContext("accountKey", accountKey).
				Err()
		}
		return stored.Token.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx, stored)
	if err != nil {
		if !expired {
			return stored.Token.AccessToken, nil
		}
		return "", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Token refresh failed. Run 'docsync account login' to re-authenticate.").
			WithContext("accountKey", accountKey).
			Build(), err)
	}

	stored.Token = refreshed
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := m.storage.Save(storageName(accountKey), data); err != nil {
		return "", fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	return refreshed.AccessToken, nil
}

func (m *Manager) refresh(ctx context.Context, stored *StoredToken) (*oauth2.Token, error) {
	cfg := &oauth2.Config{
		ClientID: stored.ClientID,
		Scopes:   stored.Scopes,
		Endpoint: oauth2.Endpoint{TokenURL: stored.TokenURL},
	}
	// An expired copy forces the token source to hit the token endpoint.
	expired := *stored.Token
	expired.Expiry = time.Unix(1, 0)
	token, err := cfg.TokenSource(ctx, &expired).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = stored.Token.RefreshToken
	}
	return token, nil
}

// Revoke removes the stored credential for an account key. A missing
// credential is not an error.
func (m *Manager) Revoke(accountKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.Delete(storageName(accountKey)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to revoke credentials: %w", err)
	}
	return nil
}

// ListAccountKeys returns the account keys that have stored credentials
func (m *Manager) ListAccountKeys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.storage.List()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if key, ok := accountKeyFromName(name); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ConfigDir returns the configuration directory
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns any warning message about the storage backend
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
