package remote

import (
	"context"
	"io"

	"github.com/dl-alexandre/docsync/internal/types"
)

// Service is the document service a SyncFolder mirrors. Every call carries
// the bearer token of the account that owns the folder.
type Service interface {
	ListRootFolders(ctx context.Context, token string) ([]types.RemoteNode, error)
	ListChildren(ctx context.Context, token, folderID string) ([]types.RemoteNode, error)
	GetDetail(ctx context.Context, token, nodeID string) (types.RemoteNode, error)
	Download(ctx context.Context, token, fileID string) (io.ReadCloser, error)
	// Upload stores content under name in folderID, replacing an existing
	// file of the same name.
	Upload(ctx context.Context, token, folderID, name string, content io.Reader) (types.RemoteNode, error)
	CreateFolder(ctx context.Context, token, parentID, name string) (types.RemoteNode, error)
	Delete(ctx context.Context, token, nodeID string) error
	// ChecksumAlgorithm names the digest reported in RemoteNode.Checksum, or
	// "" when the service leaves the choice to the client.
	ChecksumAlgorithm() string
}

// Connector binds a Service to one account's server
type Connector interface {
	Connect(ctx context.Context, account types.Account) (Service, error)
}

// ConnectorFunc adapts a function to Connector
type ConnectorFunc func(ctx context.Context, account types.Account) (Service, error)

func (f ConnectorFunc) Connect(ctx context.Context, account types.Account) (Service, error) {
	return f(ctx, account)
}
