package cli

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/docsync/internal/folders"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/cobra"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Sync folder management",
	Long:  "Pair remote folders with local directories and control their sync state",
}

var folderAddCmd = &cobra.Command{
	Use:   "add <local-path> <remote-folder-id>",
	Short: "Sync a remote folder into a local directory",
	Long: `Create a sync folder for the active (or --account) account. The local
path may not equal, contain or lie inside another sync folder's path. The
folder is enabled right away unless --paused is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runFolderAdd,
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync folders",
	RunE:  runFolderList,
}

var folderRemoveCmd = &cobra.Command{
	Use:   "remove <folder>",
	Short: "Stop syncing a folder",
	Long:  "Remove a sync folder configuration and its snapshot. Local and remote files are kept.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFolderRemove,
}

var folderEnableCmd = &cobra.Command{
	Use:   "enable <folder>",
	Short: "Enable syncing for a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runFolderEnable,
}

var folderDisableCmd = &cobra.Command{
	Use:   "disable <folder>",
	Short: "Pause syncing for a folder",
	Long:  "Disable a folder. A running pass stops at its next checkpoint.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFolderDisable,
}

var folderSetCmd = &cobra.Command{
	Use:   "set <folder>",
	Short: "Change a folder's settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runFolderSet,
}

var (
	folderDirection  string
	folderPolicy     string
	folderRemotePath string
	folderLocalPath  string
	folderPaused     bool
	folderSkipCheck  bool
	folderAll        bool
)

func init() {
	folderAddCmd.Flags().StringVar(&folderDirection, "direction", string(types.DirectionBidirectional), "bidirectional, uploadOnly or downloadOnly")
	folderAddCmd.Flags().StringVar(&folderPolicy, "conflict", string(types.PolicyCreateCopy), "remoteWins, localWins, createCopy or askUser")
	folderAddCmd.Flags().StringVar(&folderRemotePath, "remote-path", "", "Display path of the remote folder")
	folderAddCmd.Flags().BoolVar(&folderPaused, "paused", false, "Create the folder without enabling it")
	folderAddCmd.Flags().BoolVar(&folderSkipCheck, "skip-check", false, "Do not look the remote folder up on the server")

	folderListCmd.Flags().BoolVar(&folderAll, "all", false, "List folders of every account")

	folderSetCmd.Flags().StringVar(&folderDirection, "direction", "", "bidirectional, uploadOnly or downloadOnly")
	folderSetCmd.Flags().StringVar(&folderPolicy, "conflict", "", "remoteWins, localWins, createCopy or askUser")
	folderSetCmd.Flags().StringVar(&folderRemotePath, "remote-path", "", "Display path of the remote folder")
	folderSetCmd.Flags().StringVar(&folderLocalPath, "local-path", "", "Move the folder to a new local directory")

	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderRemoveCmd)
	folderCmd.AddCommand(folderEnableCmd)
	folderCmd.AddCommand(folderDisableCmd)
	folderCmd.AddCommand(folderSetCmd)
	rootCmd.AddCommand(folderCmd)
}

func runFolderAdd(cmd *cobra.Command, args []string) error {
	return withApp("folder.add", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		account, err := a.account(ctx)
		if err != nil {
			return err
		}
		direction, policy, err := parseSettings(folderDirection, folderPolicy)
		if err != nil {
			return err
		}

		remotePath := folderRemotePath
		if !folderSkipCheck {
			node, err := a.lookupRemoteFolder(ctx, account, args[1])
			if err != nil {
				return err
			}
			if remotePath == "" {
				remotePath = "/" + node.Name
			}
		}

		folder, err := a.folders.Create(ctx, folders.CreateRequest{
			AccountID:        account.ID,
			RemoteFolderID:   args[1],
			RemoteFolderPath: remotePath,
			LocalPath:        args[0],
			Direction:        direction,
			Policy:           policy,
		})
		if err != nil {
			return err
		}
		if !folderPaused {
			if folder, err = a.engine.Enable(ctx, folder.ID); err != nil {
				return err
			}
		}
		out.Log("Syncing %s with %s", folder.LocalPath, folder.RemoteFolderPath)
		return out.WriteSuccess("folder.add", folderList{*folder})
	})
}

// lookupRemoteFolder checks that id names a folder the account can traverse
func (a *app) lookupRemoteFolder(ctx context.Context, account *types.Account, id string) (*types.RemoteNode, error) {
	token, err := a.vault.ResolveToken(ctx, account.Key())
	if err != nil {
		return nil, err
	}
	svc, err := a.connector.Connect(ctx, *account)
	if err != nil {
		return nil, err
	}
	node, err := svc.GetDetail(ctx, token, id)
	if err != nil {
		return nil, err
	}
	if !node.IsFolder() {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, "remote node is not a folder").
			WithContext("remoteFolderId", id).
			Err()
	}
	if missing := remote.MissingForSync(node); missing != "" {
		return nil, utils.NewCLIError(utils.ErrCodePermissionDenied, remote.DeniedReason(missing)).
			WithContext("remoteFolderId", id).
			Err()
	}
	return &node, nil
}

func runFolderList(cmd *cobra.Command, args []string) error {
	return withApp("folder.list", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		accountID := ""
		if !folderAll {
			account, err := a.account(ctx)
			if err != nil {
				return err
			}
			accountID = account.ID
		}
		all, err := a.folders.List(ctx, accountID)
		if err != nil {
			return err
		}
		return out.WriteSuccess("folder.list", folderList(all))
	})
}

func runFolderRemove(cmd *cobra.Command, args []string) error {
	return withApp("folder.remove", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		folder, err := a.folders.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.folders.Remove(ctx, folder.ID); err != nil {
			return err
		}
		out.Log("Stopped syncing %s; its files were kept", folder.LocalPath)
		return out.WriteSuccess("folder.remove", map[string]interface{}{"removed": folder.ID})
	})
}

func runFolderEnable(cmd *cobra.Command, args []string) error {
	return toggleFolder("folder.enable", args[0], true)
}

func runFolderDisable(cmd *cobra.Command, args []string) error {
	return toggleFolder("folder.disable", args[0], false)
}

func toggleFolder(command, ref string, enable bool) error {
	return withApp(command, appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		folder, err := a.folders.Resolve(ctx, ref)
		if err != nil {
			return err
		}
		if enable {
			folder, err = a.engine.Enable(ctx, folder.ID)
		} else {
			folder, err = a.engine.Disable(ctx, folder.ID)
		}
		if err != nil {
			return err
		}
		return out.WriteSuccess(command, folderList{*folder})
	})
}

func runFolderSet(cmd *cobra.Command, args []string) error {
	return withApp("folder.set", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		folder, err := a.folders.Resolve(ctx, args[0])
		if err != nil {
			return err
		}

		var m folders.Mutation
		flags := cmd.Flags()
		if flags.Changed("direction") {
			direction, ok := types.ParseDirection(folderDirection)
			if !ok {
				return invalidSetting("direction", folderDirection)
			}
			m.Direction = &direction
		}
		if flags.Changed("conflict") {
			policy, ok := types.ParsePolicy(folderPolicy)
			if !ok {
				return invalidSetting("conflict", folderPolicy)
			}
			m.ConflictResolution = &policy
		}
		if flags.Changed("remote-path") {
			m.RemoteFolderPath = &folderRemotePath
		}
		if flags.Changed("local-path") {
			m.LocalPath = &folderLocalPath
		}
		if m == (folders.Mutation{}) {
			return utils.NewCLIError(utils.ErrCodeInvalidArgument, "nothing to change").Err()
		}

		updated, err := a.folders.Update(ctx, folder.ID, m)
		if err != nil {
			return err
		}
		return out.WriteSuccess("folder.set", folderList{*updated})
	})
}

func parseSettings(direction, policy string) (types.SyncDirection, types.ConflictPolicy, error) {
	d, ok := types.ParseDirection(direction)
	if !ok {
		return "", "", invalidSetting("direction", direction)
	}
	p, ok := types.ParsePolicy(policy)
	if !ok {
		return "", "", invalidSetting("conflict", policy)
	}
	return d, p, nil
}

func invalidSetting(name, value string) error {
	return utils.NewCLIError(utils.ErrCodeInvalidArgument, fmt.Sprintf("unknown %s: %s", name, value)).
		WithContext(name, value).
		Err()
}
