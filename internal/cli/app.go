package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dl-alexandre/docsync/internal/accounts"
	"github.com/dl-alexandre/docsync/internal/api"
	"github.com/dl-alexandre/docsync/internal/auth"
	"github.com/dl-alexandre/docsync/internal/config"
	"github.com/dl-alexandre/docsync/internal/folders"
	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/remote/drive"
	"github.com/dl-alexandre/docsync/internal/store"
	syncengine "github.com/dl-alexandre/docsync/internal/sync"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/dl-alexandre/docsync/pkg/version"
)

// app holds everything a command needs, wired from the configuration
type app struct {
	cfg       *config.Config
	configDir string
	db        *store.DB
	vault     *auth.Manager
	connector remote.Connector
	engine    *syncengine.Engine
	accounts  *accounts.Registry
	folders   *folders.Registry
}

type appOptions struct {
	notifier syncengine.Notifier
}

func openApp(opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
	}
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(filepath.Join(configDir, utils.DatabaseFileName))
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown, "failed to open state database").
			WithContext("configDir", configDir).
			Build(), err)
	}

	lockDir := filepath.Join(configDir, utils.FolderLockDir)
	if err := os.MkdirAll(lockDir, 0700); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	vault := auth.NewManagerWithOptions(configDir, auth.ManagerOptions{Backend: cfg.CredentialStorage})

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = cfg.GetRequestTimeout()
	var transport http.RoundTripper = base
	if debugRT != nil {
		transport = debugRT.Wrap(base)
	}
	connector := drive.NewConnector(drive.Options{
		Transport: transport,
		UserAgent: version.UserAgent(),
		Logger:    logger,
	})

	engine := syncengine.New(syncengine.Options{
		Store:             db,
		Connector:         connector,
		Credentials:       vault,
		Client:            api.NewClient("docs", cfg.MaxRetries, cfg.RetryBaseDelay, logger),
		Workers:           cfg.Workers,
		DownloadAttempts:  cfg.DownloadAttempts,
		ChecksumAlgorithm: cfg.ChecksumAlgorithm,
		ExcludePatterns:   cfg.ExcludePatterns,
		Notifier:          opts.notifier,
		Logger:            logger,
		LockDir:           lockDir,
	})

	return &app{
		cfg:       cfg,
		configDir: configDir,
		db:        db,
		vault:     vault,
		connector: connector,
		engine:    engine,
		accounts:  accounts.NewRegistry(accounts.Options{Store: db, Vault: vault, Gate: engine, Logger: logger}),
		folders:   folders.NewRegistry(folders.Options{Store: db, Locker: engine, Logger: logger}),
	}, nil
}

func (a *app) Close() error {
	a.engine.Wait()
	return a.db.Close()
}

// account returns the account named by --account, or the active one
func (a *app) account(ctx context.Context) (*types.Account, error) {
	if globalFlags.Account != "" {
		return a.accounts.Resolve(ctx, globalFlags.Account)
	}
	return a.accounts.Active(ctx)
}

// withApp opens the app, runs fn and reports its error in the command's
// output envelope
func withApp(command string, opts appOptions, fn func(ctx context.Context, a *app, out *OutputWriter) error) error {
	out := newOutput()
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(opts)
	if err != nil {
		return out.Fail(command, err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("failed to close state database", logging.F("error", closeErr.Error()))
		}
	}()
	if warning := a.vault.GetStorageWarning(); warning != "" {
		out.AddWarning("CREDENTIAL_STORAGE", warning, "warning")
	}

	err = fn(ctx, a, out)
	var reported *reportedError
	if err == nil || errors.As(err, &reported) {
		return err
	}
	return out.Fail(command, err)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
