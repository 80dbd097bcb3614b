package cli

import (
	"context"

	"github.com/dl-alexandre/docsync/internal/api"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Browse the account's document server",
}

var remoteRootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "List the top-level folders that can be synced",
	RunE:  runRemoteRoots,
}

var remoteListCmd = &cobra.Command{
	Use:   "ls <folder-id>",
	Short: "List the children of a remote folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteList,
}

func init() {
	remoteCmd.AddCommand(remoteRootsCmd)
	remoteCmd.AddCommand(remoteListCmd)
	rootCmd.AddCommand(remoteCmd)
}

func runRemoteRoots(cmd *cobra.Command, args []string) error {
	return withApp("remote.roots", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		return a.browse(ctx, "", func(svc remote.Service, token string) ([]types.RemoteNode, error) {
			return svc.ListRootFolders(ctx, token)
		}, out, "remote.roots")
	})
}

func runRemoteList(cmd *cobra.Command, args []string) error {
	return withApp("remote.ls", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		return a.browse(ctx, args[0], func(svc remote.Service, token string) ([]types.RemoteNode, error) {
			return svc.ListChildren(ctx, token, args[0])
		}, out, "remote.ls")
	})
}

func (a *app) browse(ctx context.Context, nodeID string, list func(remote.Service, string) ([]types.RemoteNode, error), out *OutputWriter, command string) error {
	account, err := a.account(ctx)
	if err != nil {
		return err
	}
	token, err := a.vault.ResolveToken(ctx, account.Key())
	if err != nil {
		return err
	}
	svc, err := a.connector.Connect(ctx, *account)
	if err != nil {
		return err
	}

	client := api.NewClient("docs", a.cfg.MaxRetries, a.cfg.RetryBaseDelay, logger)
	reqCtx := api.NewRequestContext(account.Key(), "", types.RequestTypeList)
	if nodeID != "" {
		reqCtx = api.WithNodeIDs(reqCtx, nodeID)
	}
	nodes, err := api.ExecuteWithRetry(ctx, client, reqCtx, func() ([]types.RemoteNode, error) {
		return list(svc, token)
	})
	if err != nil {
		return err
	}
	return out.WriteSuccess(command, remoteList(nodes))
}
