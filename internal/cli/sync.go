package cli

import (
	"context"
	"fmt"

	syncengine "github.com/dl-alexandre/docsync/internal/sync"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run and inspect sync passes",
}

var syncRunCmd = &cobra.Command{
	Use:   "run [folder...]",
	Short: "Run a sync pass now",
	Long: `Run one pass for each named folder, or for every enabled folder when
none is named. A folder whose pass is already running is reported as
coalesced.`,
	RunE: runSyncRun,
}

var syncPlanCmd = &cobra.Command{
	Use:   "plan <folder>",
	Short: "Show what a pass would do without changing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncPlan,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status [folder]",
	Short: "Show the sync state of folders",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSyncStatus,
}

var syncPendingCmd = &cobra.Command{
	Use:   "pending [folder]",
	Short: "List conflicts waiting for a decision",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSyncPending,
}

var syncDecideCmd = &cobra.Command{
	Use:   "decide <folder> <path> <remoteWins|localWins|createCopy>",
	Short: "Resolve a conflict waiting for a decision",
	Long:  "Record how a deferred conflict is resolved. The decision is applied by the next pass.",
	Args:  cobra.ExactArgs(3),
	RunE:  runSyncDecide,
}

var syncDecideNow bool

func init() {
	syncDecideCmd.Flags().BoolVar(&syncDecideNow, "now", false, "Run a pass for the folder right after deciding")

	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncPlanCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncPendingCmd)
	syncCmd.AddCommand(syncDecideCmd)
	rootCmd.AddCommand(syncCmd)
}

// progressNotifier reports engine events on stderr while a command waits
func progressNotifier(out *OutputWriter) syncengine.Notifier {
	return syncengine.NotifierFuncs{
		OnStatus: func(ev syncengine.StatusEvent) {
			out.Verbose("%s: %s -> %s", ev.FolderID, ev.OldStatus, ev.NewStatus)
		},
		OnDecision: func(ev syncengine.DecisionEvent) {
			out.Log("Decision needed in %s for %s (local %s; remote %s)",
				ev.FolderID, ev.RelativePath, ev.LocalSummary, ev.RemoteSummary)
		},
	}
}

func runSyncRun(cmd *cobra.Command, args []string) error {
	opts := appOptions{notifier: progressNotifier(newOutput())}
	return withApp("sync.run", opts, func(ctx context.Context, a *app, out *OutputWriter) error {
		var results passReport
		if len(args) == 0 {
			all, err := a.engine.TriggerAll(ctx)
			results = all
			if err != nil {
				return err
			}
		} else {
			for _, ref := range args {
				folder, err := a.folders.Resolve(ctx, ref)
				if err != nil {
					return err
				}
				res, err := a.engine.Trigger(ctx, folder.ID)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
		}

		if err := out.WriteSuccess("sync.run", results); err != nil {
			return err
		}
		return passFailure(results)
	})
}

// passFailure turns passes that ended in error into a non-zero exit after
// the report was written
func passFailure(results passReport) error {
	var failed []string
	for _, res := range results {
		if res != nil && res.Status == types.StatusError {
			failed = append(failed, res.FolderID)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &reportedError{err: utils.NewCLIError(utils.ErrCodeSyncPartialFailure,
		fmt.Sprintf("%d folder(s) ended in error", len(failed))).
		WithContext("folders", failed).
		Err()}
}

func runSyncPlan(cmd *cobra.Command, args []string) error {
	return withApp("sync.plan", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		folder, err := a.folders.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		plan, err := a.engine.PlanFolder(ctx, folder.ID)
		if err != nil {
			return err
		}
		return out.WriteSuccess("sync.plan", planView{plan})
	})
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	return withApp("sync.status", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		if len(args) == 1 {
			folder, err := a.folders.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return out.WriteSuccess("sync.status", folderList{*folder})
		}
		all, err := a.folders.List(ctx, "")
		if err != nil {
			return err
		}
		return out.WriteSuccess("sync.status", folderList(all))
	})
}

func runSyncPending(cmd *cobra.Command, args []string) error {
	return withApp("sync.pending", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		folderID := ""
		if len(args) == 1 {
			folder, err := a.folders.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			folderID = folder.ID
		}
		pending, err := a.engine.PendingDecisions(ctx, folderID)
		if err != nil {
			return err
		}
		return out.WriteSuccess("sync.pending", decisionList(pending))
	})
}

func runSyncDecide(cmd *cobra.Command, args []string) error {
	return withApp("sync.decide", appOptions{}, func(ctx context.Context, a *app, out *OutputWriter) error {
		folder, err := a.folders.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		policy, ok := types.ParsePolicy(args[2])
		if !ok || !policy.Decisive() {
			return invalidSetting("decision", args[2])
		}
		if err := a.engine.Decide(ctx, folder.ID, args[1], policy); err != nil {
			return err
		}
		out.Log("Recorded %s for %s", policy, args[1])
		if !syncDecideNow {
			return out.WriteSuccess("sync.decide", map[string]interface{}{
				"folderId": folder.ID,
				"path":     args[1],
				"decision": policy,
			})
		}

		res, err := a.engine.Trigger(ctx, folder.ID)
		if err != nil {
			return err
		}
		results := passReport{res}
		if err := out.WriteSuccess("sync.decide", results); err != nil {
			return err
		}
		return passFailure(results)
	})
}
