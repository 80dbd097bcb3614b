package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dl-alexandre/docsync/internal/auth"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account management",
	Long:  "Add, list, switch and remove the accounts used to reach document servers",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account",
	Long: `Register an account on a document server. The first account added
becomes the active one. A credential can be stored at the same time with
--token or --token-stdin, or later with 'account login'.`,
	RunE: runAccountAdd,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runAccountList,
}

var accountSwitchCmd = &cobra.Command{
	Use:   "switch <account>",
	Short: "Make an account the active one",
	Long:  "Switch the active account. Running passes of the previous account finish their current transfer first.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountSwitch,
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <account>",
	Short: "Remove an account",
	Long: `Remove an account, its sync folder configurations and its stored
credential. Local files and remote documents are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountRemove,
}

var accountLoginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Store a credential for an account",
	Long: `Store the credential used to talk to an account's server. Pass an access
token with --token or --token-stdin, or run the OAuth device flow with
--client-id, --device-auth-url and --token-url.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAccountLogin,
}

var (
	accountServer     string
	accountEmail      string
	accountName       string
	accountToken      string
	accountTokenStdin bool
	deviceLogin       auth.DeviceLogin
)

func init() {
	accountAddCmd.Flags().StringVar(&accountServer, "server", "", "Server URL (required)")
	accountAddCmd.Flags().StringVar(&accountEmail, "email", "", "Account email (required)")
	accountAddCmd.Flags().StringVar(&accountName, "name", "", "Display name (defaults to the email)")
	_ = accountAddCmd.MarkFlagRequired("server")
	_ = accountAddCmd.MarkFlagRequired("email")

	for _, cmd := range []*cobra.Command{accountAddCmd, accountLoginCmd} {
		cmd.Flags().StringVar(&accountToken, "token", "", "Access token to store")
		cmd.Flags().BoolVar(&accountTokenStdin, "token-stdin", false, "Read the access token from stdin")
	}
	accountLoginCmd.Flags().StringVar(&deviceLogin.ClientID, "client-id", os.Getenv("DOCSYNC_CLIENT_ID"), "OAuth client ID for the device flow")
	accountLoginCmd.Flags().StringVar(&deviceLogin.DeviceAuthURL, "device-auth-url", "", "Device authorization endpoint")
	accountLoginCmd.Flags().StringVar(&deviceLogin.TokenURL, "token-url", "", "Token endpoint")
	accountLoginCmd.Flags().StringSliceVar(&deviceLogin.Scopes, "scopes", nil, "OAuth scopes to request")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountSwitchCmd)
	accountCmd.AddCommand(accountRemoveCmd)
	accountCmd.AddCommand(accountLoginCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	return withApp("account.add", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		token, err := readToken(cmd.InOrStdin())
		if err != nil {
			return err
		}
		account, err := a.accounts.Add(ctx, accountName, accountServer, accountEmail)
		if err != nil {
			return err
		}
		if token != "" {
			if err := a.vault.SaveAccessToken(account.Key(), token); err != nil {
				out.AddWarning(utils.ErrCodeNoCredential, fmt.Sprintf("account added but the credential was not stored: %v", err), "warning")
			}
		}
		out.Log("Added account %s (%s)", account.DisplayName, account.ID)
		return out.WriteSuccess("account.add", accountList{a.view(*account)})
	})
}

func runAccountList(cmd *cobra.Command, args []string) error {
	return withApp("account.list", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		all, err := a.accounts.List(ctx)
		if err != nil {
			return err
		}
		views := make(accountList, 0, len(all))
		for _, account := range all {
			views = append(views, a.view(account))
		}
		return out.WriteSuccess("account.list", views)
	})
}

func runAccountSwitch(cmd *cobra.Command, args []string) error {
	return withApp("account.switch", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		account, err := a.accounts.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.accounts.SwitchActive(ctx, account.ID); err != nil {
			return err
		}
		account.IsActive = true
		out.Log("Active account is now %s", account.DisplayName)
		return out.WriteSuccess("account.switch", accountList{a.view(*account)})
	})
}

func runAccountRemove(cmd *cobra.Command, args []string) error {
	return withApp("account.remove", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		account, err := a.accounts.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		promoted, err := a.accounts.Remove(ctx, account.ID)
		if err != nil {
			return err
		}
		result := map[string]interface{}{"removed": account.ID}
		if promoted != nil {
			result["active"] = promoted.ID
			out.Log("Active account is now %s", promoted.DisplayName)
		}
		out.Log("Removed account %s", account.DisplayName)
		return out.WriteSuccess("account.remove", result)
	})
}

func runAccountLogin(cmd *cobra.Command, args []string) error {
	return withApp("account.login", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		account, err := a.account(ctx)
		if len(args) == 1 {
			account, err = a.accounts.Resolve(ctx, args[0])
		}
		if err != nil {
			return err
		}

		token, err := readToken(cmd.InOrStdin())
		if err != nil {
			return err
		}
		method := "token"
		if token != "" {
			err = a.vault.SaveAccessToken(account.Key(), token)
		} else {
			method = "device"
			err = a.vault.AuthenticateWithDeviceCode(ctx, account.Key(), deviceLogin, func(verificationURL, userCode string) {
				fmt.Fprintf(os.Stderr, "Open %s and enter code %s\n", verificationURL, userCode)
			})
		}
		if err != nil {
			if utils.CodeOf(err) == utils.ErrCodeUnknown {
				return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, err.Error()).
					WithContext("accountId", account.ID).
					Build(), err)
			}
			return err
		}

		out.Log("Credential stored for %s", account.DisplayName)
		return out.WriteSuccess("account.login", map[string]interface{}{
			"accountId":      account.ID,
			"method":         method,
			"storageBackend": a.vault.GetStorageBackend(),
		})
	})
}

func (a *app) view(account types.Account) accountView {
	_, err := a.vault.LoadToken(account.Key())
	return accountView{Account: account, HasCredential: err == nil}
}

// readToken returns the --token value, or the first line of r with
// --token-stdin
func readToken(r io.Reader) (string, error) {
	if !accountTokenStdin {
		return strings.TrimSpace(accountToken), nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", utils.NewCLIError(utils.ErrCodeInvalidArgument, "no token on stdin").Err()
	}
	return token, nil
}
