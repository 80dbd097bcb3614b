package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// DeviceLogin describes an OAuth device authorization grant against an
// account's server
type DeviceLogin struct {
	ClientID      string
	DeviceAuthURL string
	TokenURL      string
	Scopes        []string
}

func (d DeviceLogin) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: d.ClientID,
		Scopes:   d.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: d.DeviceAuthURL,
			TokenURL:      d.TokenURL,
		},
	}
}

// AuthenticateWithDeviceCode runs the device code flow and stores the
// resulting token for accountKey. prompt is shown the verification URL and
// user code before polling starts.
func (m *Manager) AuthenticateWithDeviceCode(ctx context.Context, accountKey string, login DeviceLogin, prompt func(verificationURL, userCode string)) error {
	if login.ClientID == "" || login.DeviceAuthURL == "" || login.TokenURL == "" {
		return fmt.Errorf("device login needs a client id and both endpoint URLs")
	}
	cfg := login.config()

	resp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("failed to request device code: %w", err)
	}

	verification := resp.VerificationURIComplete
	if verification == "" {
		verification = resp.VerificationURI
	}
	if prompt != nil {
		prompt(verification, resp.UserCode)
	}

	token, err := cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return fmt.Errorf("device authorization failed: %w", err)
	}

	return m.SaveToken(accountKey, StoredToken{
		Token:    token,
		ClientID: login.ClientID,
		TokenURL: login.TokenURL,
		Scopes:   login.Scopes,
	})
}
