package mocks

import (
	"context"
	"sync"

	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
)

// Connector hands out one Service per server URL
type Connector struct {
	mu       sync.Mutex
	services map[string]*Service
}

var _ remote.Connector = (*Connector)(nil)

func NewConnector() *Connector {
	return &Connector{services: make(map[string]*Service)}
}

// Register binds serverURL to svc
func (c *Connector) Register(serverURL string, svc *Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[serverURL] = svc
}

func (c *Connector) Connect(ctx context.Context, account types.Account) (remote.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	svc, ok := c.services[account.ServerURL]
	if !ok {
		return nil, utils.NewCLIError(utils.ErrCodeNetworkError, "no service registered for server").
			WithContext("serverUrl", account.ServerURL).
			Err()
	}
	return svc, nil
}

// Credentials is an in-memory CredentialContext keyed by account key
type Credentials struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewCredentials(tokens map[string]string) *Credentials {
	c := &Credentials{tokens: make(map[string]string)}
	for k, v := range tokens {
		c.tokens[k] = v
	}
	return c
}

// Set stores token for accountKey
func (c *Credentials) Set(accountKey, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[accountKey] = token
}

// Revoke forgets the token for accountKey
func (c *Credentials) Revoke(accountKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, accountKey)
	return nil
}

func (c *Credentials) ResolveToken(ctx context.Context, accountKey string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.tokens[accountKey]
	if !ok {
		return "", utils.NewCLIError(utils.ErrCodeNoCredential, "no credential stored for account").Err()
	}
	return token, nil
}
