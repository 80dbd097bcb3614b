// Package drive adapts the Drive v3 API to remote.Service.
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/types"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	mimeTypeFolder = "application/vnd.google-apps.folder"
	// Native editor documents have no binary content to download
	nativeMimePrefix = "application/vnd.google-apps."

	nodeFields googleapi.Field = "id,name,mimeType,parents,size,md5Checksum,version,modifiedTime," +
		"capabilities(canListChildren,canDownload,canAddChildren,canEdit,canDelete,canTrash)"
	listFields googleapi.Field = "nextPageToken,files(" + nodeFields + ")"
)

// Service talks to one Drive-compatible server
type Service struct {
	endpoint  string
	transport http.RoundTripper
	userAgent string
	logger    logging.Logger

	mu       sync.Mutex
	token    string
	cached   *drive.Service
	pageSize int64
}

// Options configures the adapter
type Options struct {
	// Transport wraps the HTTP round trips, e.g. a logging.DebugTransport
	Transport http.RoundTripper
	UserAgent string
	Logger    logging.Logger
	PageSize  int64
}

// New creates an adapter for serverURL. An empty serverURL uses the
// library's default endpoint.
func New(serverURL string, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	endpoint := ""
	if serverURL != "" {
		endpoint = strings.TrimRight(serverURL, "/") + "/drive/v3/"
	}
	return &Service{
		endpoint:  endpoint,
		transport: opts.Transport,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
		pageSize:  opts.PageSize,
	}
}

// NewConnector returns a remote.Connector that binds each account to its
// own server URL
func NewConnector(opts Options) remote.Connector {
	return remote.ConnectorFunc(func(ctx context.Context, account types.Account) (remote.Service, error) {
		return New(account.ServerURL, opts), nil
	})
}

func (s *Service) service(ctx context.Context, token string) (*drive.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.token == token {
		return s.cached, nil
	}

	base := s.transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	if s.userAgent != "" {
		opts = append(opts, option.WithUserAgent(s.userAgent))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	s.token = token
	s.cached = svc
	return svc, nil
}

func (s *Service) ChecksumAlgorithm() string {
	return "md5"
}

func (s *Service) ListRootFolders(ctx context.Context, token string) ([]types.RemoteNode, error) {
	return s.list(ctx, token, fmt.Sprintf("'root' in parents and mimeType = '%s' and trashed = false", mimeTypeFolder))
}

func (s *Service) ListChildren(ctx context.Context, token, folderID string) ([]types.RemoteNode, error) {
	return s.list(ctx, token, fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID)))
}

func (s *Service) list(ctx context.Context, token, query string) ([]types.RemoteNode, error) {
	svc, err := s.service(ctx, token)
	if err != nil {
		return nil, err
	}

	call := svc.Files.List().
		Q(query).
		Fields(listFields).
		PageSize(s.pageSize).
		OrderBy("name").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)

	var nodes []types.RemoteNode
	for {
		list, err := call.Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		for _, f := range list.Files {
			nodes = append(nodes, toNode(f))
		}
		if list.NextPageToken == "" {
			break
		}
		call = call.PageToken(list.NextPageToken)
	}
	return nodes, nil
}

func (s *Service) GetDetail(ctx context.Context, token, nodeID string) (types.RemoteNode, error) {
	svc, err := s.service(ctx, token)
	if err != nil {
		return types.RemoteNode{}, err
	}
	f, err := svc.Files.Get(nodeID).Fields(nodeFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return types.RemoteNode{}, err
	}
	return toNode(f), nil
}

func (s *Service) Download(ctx context.Context, token, fileID string) (io.ReadCloser, error) {
	svc, err := s.service(ctx, token)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *Service) Upload(ctx context.Context, token, folderID, name string, content io.Reader) (types.RemoteNode, error) {
	svc, err := s.service(ctx, token)
	if err != nil {
		return types.RemoteNode{}, err
	}

	existing, err := s.findFile(ctx, svc, folderID, name)
	if err != nil {
		return types.RemoteNode{}, err
	}

	var f *drive.File
	if existing != "" {
		s.logger.Debug("replacing remote file content", logging.F("fileId", existing), logging.F("name", name))
		f, err = svc.Files.Update(existing, &drive.File{}).
			Media(content).
			Fields(nodeFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		f, err = svc.Files.Create(&drive.File{Name: name, Parents: []string{folderID}}).
			Media(content).
			Fields(nodeFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}
	if err != nil {
		return types.RemoteNode{}, err
	}
	return toNode(f), nil
}

func (s *Service) findFile(ctx context.Context, svc *drive.Service, folderID, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType != '%s' and trashed = false",
		escapeQuery(name), escapeQuery(folderID), mimeTypeFolder)
	list, err := svc.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (s *Service) CreateFolder(ctx context.Context, token, parentID, name string) (types.RemoteNode, error) {
	svc, err := s.service(ctx, token)
	if err != nil {
		return types.RemoteNode{}, err
	}
	f, err := svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeTypeFolder,
		Parents:  []string{parentID},
	}).Fields(nodeFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return types.RemoteNode{}, err
	}
	return toNode(f), nil
}

// Delete moves the node to the trash
func (s *Service) Delete(ctx context.Context, token, nodeID string) error {
	svc, err := s.service(ctx, token)
	if err != nil {
		return err
	}
	_, err = svc.Files.Update(nodeID, &drive.File{Trashed: true}).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

func toNode(f *drive.File) types.RemoteNode {
	node := types.RemoteNode{
		ID:       f.Id,
		Name:     f.Name,
		Kind:     types.KindFile,
		Size:     f.Size,
		Checksum: f.Md5Checksum,
	}
	if f.MimeType == mimeTypeFolder {
		node.Kind = types.KindFolder
	}
	if len(f.Parents) > 0 {
		node.ParentID = f.Parents[0]
	}
	if f.Version != 0 {
		node.Version = fmt.Sprintf("%d", f.Version)
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			node.UpdatedAt = t.UTC()
		}
	}
	node.Permissions = capabilities(f)
	return node
}

func capabilities(f *drive.File) []string {
	c := f.Capabilities
	if c == nil {
		return nil
	}
	var perms []string
	if c.CanListChildren {
		perms = append(perms, types.CapListFolderContent)
	}
	if c.CanDownload && (f.MimeType == mimeTypeFolder || !strings.HasPrefix(f.MimeType, nativeMimePrefix)) {
		perms = append(perms, types.CapDownloadDocument)
	}
	if c.CanAddChildren {
		perms = append(perms, types.CapCreateDocument)
	}
	if c.CanEdit {
		perms = append(perms, types.CapEditDocumentContent)
	}
	if c.CanDelete || c.CanTrash {
		perms = append(perms, types.CapDeleteDocument)
	}
	return perms
}

func escapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, "'", `\'`)
}
