package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/docsync/internal/logging"
	syncengine "github.com/dl-alexandre/docsync/internal/sync"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync enabled folders periodically",
	Long: `Run passes for every enabled folder now and then once per interval
until interrupted. Only one daemon may run per configuration directory.`,
	RunE: runDaemon,
}

var daemonInterval time.Duration

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Time between passes (defaults to the syncInterval setting)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	events := syncengine.NewChannelNotifier(64)
	return withApp("daemon", appOptions{notifier: events}, func(ctx context.Context, a *app, out *OutputWriter) error {
		lock := flock.New(filepath.Join(a.configDir, utils.DaemonLockName))
		locked, err := lock.TryLock()
		if err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown, "failed to acquire daemon lock").Build(), err)
		}
		if !locked {
			return utils.NewCLIError(utils.ErrCodeSyncBusy, "another daemon is running").
				WithContext("lockFile", lock.Path()).
				Err()
		}
		defer func() { _ = lock.Unlock() }()

		interval := daemonInterval
		if interval <= 0 {
			interval = a.cfg.GetSyncInterval()
		}

		logger.Info("daemon started", logging.F("interval", interval.String()), logging.F("pid_lock", lock.Path()))
		out.Log("Syncing every %s, press Ctrl+C to stop", interval)

		a.engine.Start(ctx, interval)
		drainEvents(ctx, events, out)
		a.engine.Wait()

		logger.Info("daemon stopped")
		return out.WriteSuccess("daemon", map[string]interface{}{"stopped": true})
	})
}

// drainEvents logs engine events until ctx is done, warning whenever the
// notifier had to drop some
func drainEvents(ctx context.Context, events *syncengine.ChannelNotifier, out *OutputWriter) {
	var reported uint64
	checkDropped := func() {
		if dropped := events.Dropped(); dropped > reported {
			logger.Warn("engine events dropped, run 'docsync sync status' for current state",
				logging.F("dropped", dropped-reported),
				logging.F("total", dropped),
			)
			reported = dropped
		}
	}
	defer checkDropped()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events.Status:
			fields := []logging.Field{
				logging.F("folderId", ev.FolderID),
				logging.F("from", string(ev.OldStatus)),
				logging.F("to", string(ev.NewStatus)),
			}
			if ev.LastError != "" {
				logger.Warn("folder status changed", append(fields, logging.F("error", ev.LastError))...)
			} else {
				logger.Info("folder status changed", fields...)
			}
		case ev := <-events.Decisions:
			logger.Warn("conflict waiting for a decision",
				logging.F("folderId", ev.FolderID),
				logging.F("path", ev.RelativePath),
			)
			out.Log("Decision needed in %s for %s; run 'docsync sync decide'", ev.FolderID, ev.RelativePath)
		}
		checkDropped()
	}
}
