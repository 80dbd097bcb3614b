// Package executor applies planned transfers to one sync folder.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/docsync/internal/api"
	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/sync/integrity"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/afero"
)

var (
	// ErrDirectoryNotEmpty is returned when a local directory delete would
	// remove items the plan did not delete
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	// ErrChangedSincePlan is returned when a local file was modified after
	// the scan that planned its deletion
	ErrChangedSincePlan = errors.New("local file changed since the pass was planned")

	errStreamInterrupted = errors.New("stream interrupted")
)

// Executor holds what every pass shares
type Executor struct {
	fs        afero.Fs
	client    *api.Client
	validator *integrity.Validator
	attempts  int
	logger    logging.Logger
}

type Options struct {
	Fs        afero.Fs
	Client    *api.Client
	Validator *integrity.Validator
	// DownloadAttempts bounds checksum-mismatch retries per transfer
	DownloadAttempts int
	Logger           logging.Logger
}

func New(opts Options) *Executor {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Validator == nil {
		opts.Validator = integrity.MustNew("")
	}
	if opts.DownloadAttempts < 1 {
		opts.DownloadAttempts = utils.DefaultDownloadAttempts
	}
	return &Executor{
		fs:        opts.Fs,
		client:    opts.Client,
		validator: opts.Validator,
		attempts:  opts.DownloadAttempts,
		logger:    opts.Logger,
	}
}

// Validator returns the digest used to verify transfers
func (e *Executor) Validator() *integrity.Validator {
	return e.validator
}

// Target identifies the folder a Session writes to
type Target struct {
	AccountKey string
	FolderID   string
	LocalRoot  string
	Root       types.RemoteNode
	// Folders maps relative paths of existing remote folders to their nodes
	Folders map[string]types.RemoteNode
}

// Session applies items for one pass. It is not safe for concurrent use;
// items of a pass are applied in plan order.
type Session struct {
	e       *Executor
	svc     remote.Service
	token   string
	target  Target
	folders map[string]types.RemoteNode
	logger  logging.Logger
}

// NewSession binds the executor to one folder, service and token
func (e *Executor) NewSession(svc remote.Service, token string, target Target, logger logging.Logger) *Session {
	if logger == nil {
		logger = e.logger
	}
	folders := make(map[string]types.RemoteNode, len(target.Folders)+1)
	for rel, node := range target.Folders {
		folders[rel] = node
	}
	folders[""] = target.Root
	return &Session{
		e:       e,
		svc:     svc,
		token:   token,
		target:  target,
		folders: folders,
		logger:  logger,
	}
}

// SetToken replaces the token used for subsequent calls
func (s *Session) SetToken(token string) {
	s.token = token
}

func (s *Session) absPath(rel string) string {
	return filepath.Join(s.target.LocalRoot, filepath.FromSlash(rel))
}

func (s *Session) reqCtx(requestType types.RequestType, nodeIDs ...string) *types.RequestContext {
	reqCtx := api.NewRequestContext(s.target.AccountKey, s.target.FolderID, requestType)
	return api.WithNodeIDs(reqCtx, nodeIDs...)
}

// Download writes node's content to rel atomically. The content lands in a
// temp file in the destination directory, is verified against the remote
// checksum and only then renamed over rel. A mismatch is retried with
// backoff until the attempt bound, after which CHECKSUM_MISMATCH is returned.
func (s *Session) Download(ctx context.Context, node types.RemoteNode, rel string) (types.LocalNode, error) {
	dest := s.absPath(rel)
	dir := filepath.Dir(dest)
	if err := s.e.fs.MkdirAll(dir, 0755); err != nil {
		return types.LocalNode{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	var lastErr error
	for attempt := 0; attempt < s.e.attempts; attempt++ {
		if attempt > 0 {
			delay := s.e.client.Backoff(attempt-1, lastErr)
			s.logger.Warn("retrying download",
				logging.F("path", rel),
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			if err := api.Sleep(ctx, s.e.client.Clock(), delay); err != nil {
				return types.LocalNode{}, cancelled(err)
			}
		}

		sum, err := s.downloadOnce(ctx, node, dir, dest)
		if err == nil {
			return s.finishDownload(node, rel, dest, sum)
		}
		if !retryTransfer(err) {
			return types.LocalNode{}, err
		}
		lastErr = err
	}

	s.logger.Error("download failed after retries",
		logging.F("path", rel),
		logging.F("nodeId", node.ID),
		logging.F("attempts", s.e.attempts),
	)
	return types.LocalNode{}, lastErr
}

func (s *Session) downloadOnce(ctx context.Context, node types.RemoteNode, dir, dest string) (string, error) {
	body, err := api.ExecuteWithRetry(ctx, s.e.client, s.reqCtx(types.RequestTypeDownload, node.ID), func() (io.ReadCloser, error) {
		return s.svc.Download(ctx, s.token, node.ID)
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := afero.TempFile(s.e.fs, dir, utils.TempFilePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	discard := func() {
		_ = tmp.Close()
		_ = s.e.fs.Remove(tmpName)
	}

	h := s.e.validator.NewHash()
	if _, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: body}); err != nil {
		discard()
		if ctx.Err() != nil {
			return "", cancelled(ctx.Err())
		}
		return "", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, "download stream interrupted").
			WithRetryable(true).
			WithContext("nodeId", node.ID).
			Build(), fmt.Errorf("%w: %v", errStreamInterrupted, err))
	}
	if err := tmp.Close(); err != nil {
		_ = s.e.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	sum := integrity.Sum(h)
	if !s.e.validator.Verify(node.Checksum, sum) {
		_ = s.e.fs.Remove(tmpName)
		return "", utils.NewCLIError(utils.ErrCodeChecksumMismatch, "downloaded content does not match remote checksum").
			WithRetryable(true).
			WithContext("nodeId", node.ID).
			WithContext("expected", node.Checksum).
			WithContext("actual", sum).
			Err()
	}

	if err := s.e.fs.Rename(tmpName, dest); err != nil {
		_ = s.e.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return sum, nil
}

func (s *Session) finishDownload(node types.RemoteNode, rel, dest, sum string) (types.LocalNode, error) {
	if !node.UpdatedAt.IsZero() {
		if err := s.e.fs.Chtimes(dest, node.UpdatedAt, node.UpdatedAt); err != nil {
			s.logger.Debug("failed to set modification time", logging.F("path", rel), logging.F("error", err.Error()))
		}
	}
	info, err := s.e.fs.Stat(dest)
	if err != nil {
		return types.LocalNode{}, fmt.Errorf("failed to stat %s: %w", dest, err)
	}
	return types.LocalNode{
		RelativePath: rel,
		AbsPath:      dest,
		Size:         info.Size(),
		Checksum:     sum,
		ModifiedAt:   info.ModTime(),
	}, nil
}

// Upload streams the local file at rel into the remote folder holding rel,
// creating missing remote folders first. Transient failures are retried by
// the client; permission failures return immediately. When the service
// reports a checksum, it must match the bytes sent.
func (s *Session) Upload(ctx context.Context, rel string) (types.RemoteNode, types.LocalNode, error) {
	parent, err := s.EnsureRemoteFolder(ctx, parentOf(rel))
	if err != nil {
		return types.RemoteNode{}, types.LocalNode{}, err
	}
	src := s.absPath(rel)

	var lastErr error
	for attempt := 0; attempt < s.e.attempts; attempt++ {
		if attempt > 0 {
			if err := api.Sleep(ctx, s.e.client.Clock(), s.e.client.Backoff(attempt-1, lastErr)); err != nil {
				return types.RemoteNode{}, types.LocalNode{}, cancelled(err)
			}
		}

		node, local, err := s.uploadOnce(ctx, parent, rel, src)
		if err == nil {
			return node, local, nil
		}
		if !utils.IsCode(err, utils.ErrCodeChecksumMismatch) {
			return types.RemoteNode{}, types.LocalNode{}, err
		}
		s.logger.Warn("uploaded content failed verification", logging.F("path", rel), logging.F("attempt", attempt+1))
		lastErr = err
	}
	return types.RemoteNode{}, types.LocalNode{}, lastErr
}

func (s *Session) uploadOnce(ctx context.Context, parent types.RemoteNode, rel, src string) (types.RemoteNode, types.LocalNode, error) {
	info, err := s.e.fs.Stat(src)
	if err != nil {
		return types.RemoteNode{}, types.LocalNode{}, localMissing(rel, err)
	}

	var sum string
	node, err := api.ExecuteWithRetry(ctx, s.e.client, s.reqCtx(types.RequestTypeMutation, parent.ID), func() (types.RemoteNode, error) {
		f, err := s.e.fs.Open(src)
		if err != nil {
			return types.RemoteNode{}, localMissing(rel, err)
		}
		defer f.Close()
		h := s.e.validator.NewHash()
		node, err := s.svc.Upload(ctx, s.token, parent.ID, path.Base(rel), io.TeeReader(f, h))
		sum = integrity.Sum(h)
		return node, err
	})
	if err != nil {
		return types.RemoteNode{}, types.LocalNode{}, err
	}
	if node.Checksum != "" && !integrity.Equal(node.Checksum, sum) {
		return types.RemoteNode{}, types.LocalNode{}, utils.NewCLIError(utils.ErrCodeChecksumMismatch, "remote checksum does not match uploaded content").
			WithRetryable(true).
			WithContext("nodeId", node.ID).
			WithContext("expected", sum).
			WithContext("actual", node.Checksum).
			Err()
	}

	return node, types.LocalNode{
		RelativePath: rel,
		AbsPath:      src,
		Size:         info.Size(),
		Checksum:     sum,
		ModifiedAt:   info.ModTime(),
	}, nil
}

// EnsureRemoteFolder returns the remote folder at rel, creating it and any
// missing ancestors
func (s *Session) EnsureRemoteFolder(ctx context.Context, rel string) (types.RemoteNode, error) {
	if node, ok := s.folders[rel]; ok {
		return node, nil
	}
	parent, err := s.EnsureRemoteFolder(ctx, parentOf(rel))
	if err != nil {
		return types.RemoteNode{}, err
	}
	if !remote.CanCreateIn(parent) {
		return types.RemoteNode{}, utils.NewCLIError(utils.ErrCodePermissionDenied, remote.DeniedReason(types.CapCreateDocument)).
			WithContext("nodeId", parent.ID).
			WithContext("path", rel).
			Err()
	}

	node, err := api.ExecuteWithRetry(ctx, s.e.client, s.reqCtx(types.RequestTypeMutation, parent.ID), func() (types.RemoteNode, error) {
		return s.svc.CreateFolder(ctx, s.token, parent.ID, path.Base(rel))
	})
	if err != nil {
		return types.RemoteNode{}, err
	}
	s.logger.Debug("created remote folder", logging.F("path", rel), logging.F("nodeId", node.ID))
	s.folders[rel] = node
	return node, nil
}

// CreateLocalDir creates the directory rel under the local root
func (s *Session) CreateLocalDir(rel string) (types.LocalNode, error) {
	dir := s.absPath(rel)
	if err := s.e.fs.MkdirAll(dir, 0755); err != nil {
		return types.LocalNode{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	info, err := s.e.fs.Stat(dir)
	if err != nil {
		return types.LocalNode{}, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	return types.LocalNode{RelativePath: rel, AbsPath: dir, IsDir: true, ModifiedAt: info.ModTime()}, nil
}

// DeleteLocal removes rel. Directories are only removed when empty. A file
// whose size or mtime differs from planned is left in place. A path that is
// already gone counts as deleted.
func (s *Session) DeleteLocal(rel string, planned *types.LocalNode) error {
	target := s.absPath(rel)
	info, err := s.e.fs.Stat(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", target, err)
	}

	if info.IsDir() {
		empty, err := afero.IsEmpty(s.e.fs, target)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", target, err)
		}
		if !empty {
			return ErrDirectoryNotEmpty
		}
	} else if planned != nil && (info.Size() != planned.Size || !info.ModTime().Equal(planned.ModifiedAt)) {
		return ErrChangedSincePlan
	}

	if err := s.e.fs.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", target, err)
	}
	return nil
}

// DeleteRemote deletes node. A node the service no longer knows counts as
// deleted.
func (s *Session) DeleteRemote(ctx context.Context, rel string, node types.RemoteNode) error {
	_, err := api.ExecuteWithRetry(ctx, s.e.client, s.reqCtx(types.RequestTypeMutation, node.ID), func() (struct{}, error) {
		return struct{}{}, s.svc.Delete(ctx, s.token, node.ID)
	})
	if err != nil && !utils.IsCode(err, utils.ErrCodeFileNotFound) {
		return err
	}
	if node.IsFolder() {
		prefix := rel + "/"
		for key := range s.folders {
			if key == rel || strings.HasPrefix(key, prefix) {
				delete(s.folders, key)
			}
		}
	}
	return nil
}

// retryTransfer reports whether a whole transfer should be attempted again.
// Failures to reach the service were already retried by the client.
func retryTransfer(err error) bool {
	return utils.IsCode(err, utils.ErrCodeChecksumMismatch) || errors.Is(err, errStreamInterrupted)
}

func parentOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func localMissing(rel string, err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, "local file is not readable").
		WithContext("path", rel).
		Build(), err)
}

func cancelled(err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "transfer cancelled").Build(), err)
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
