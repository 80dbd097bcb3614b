package scanner

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/dl-alexandre/docsync/internal/api"
	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
)

// Tree is a remote folder flattened to relative paths
type Tree struct {
	Root  types.RemoteNode
	Nodes map[string]types.RemoteNode
	// Denied holds paths left out of the tree with the reason they were
	// skipped. Nothing under a denied folder is listed.
	Denied map[string]string
}

// FolderIDs maps each folder's relative path to its remote id, with the
// root at ""
func (t *Tree) FolderIDs() map[string]string {
	ids := map[string]string{"": t.Root.ID}
	for rel, node := range t.Nodes {
		if node.IsFolder() {
			ids[rel] = node.ID
		}
	}
	return ids
}

// RemoteScanner lists remote trees through the retrying client
type RemoteScanner struct {
	client *api.Client
}

func NewRemoteScanner(client *api.Client) *RemoteScanner {
	return &RemoteScanner{client: client}
}

// ListTree walks the folder rootID breadth-first
func (s *RemoteScanner) ListTree(ctx context.Context, svc remote.Service, token string, reqCtx *types.RequestContext, rootID string) (*Tree, error) {
	root, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (types.RemoteNode, error) {
		return svc.GetDetail(ctx, token, rootID)
	})
	if err != nil {
		return nil, err
	}
	if !root.IsFolder() {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, "remote sync root is not a folder").
			WithContext("nodeId", rootID).Err()
	}
	if !root.Can(types.CapListFolderContent) {
		return nil, utils.NewCLIError(utils.ErrCodePermissionDenied, remote.DeniedReason(types.CapListFolderContent)).
			WithContext("nodeId", rootID).Err()
	}

	tree := &Tree{
		Root:   root,
		Nodes:  make(map[string]types.RemoteNode),
		Denied: make(map[string]string),
	}

	type pending struct {
		id   string
		path string
	}
	queue := []pending{{id: root.ID}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		children, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() ([]types.RemoteNode, error) {
			return svc.ListChildren(ctx, token, node.id)
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(children, func(i, j int) bool {
			if children[i].Name != children[j].Name {
				return children[i].Name < children[j].Name
			}
			return children[i].ID < children[j].ID
		})

		for _, child := range children {
			if !validName(child.Name) {
				s.client.Logger().Warn("skipping remote node with unsupported name",
					logging.F("nodeId", child.ID), logging.F("name", child.Name))
				continue
			}
			rel := child.Name
			if node.path != "" {
				rel = path.Join(node.path, child.Name)
			}

			if _, dup := tree.Nodes[rel]; dup || tree.Denied[rel] == reasonDuplicate {
				delete(tree.Nodes, rel)
				tree.Denied[rel] = reasonDuplicate
				continue
			}
			if missing := remote.MissingForSync(child); missing != "" {
				tree.Denied[rel] = remote.DeniedReason(missing)
				continue
			}

			tree.Nodes[rel] = child
			if child.IsFolder() {
				queue = append(queue, pending{id: child.ID, path: rel})
			}
		}
	}

	// a duplicated folder may already have queued its children
	for rel, reason := range tree.Denied {
		if reason != reasonDuplicate {
			continue
		}
		prefix := rel + "/"
		for p := range tree.Nodes {
			if strings.HasPrefix(p, prefix) {
				delete(tree.Nodes, p)
			}
		}
	}

	return tree, nil
}

const reasonDuplicate = "ambiguous: several remote items share this name"

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\x00")
}
