package remote

import (
	"github.com/dl-alexandre/docsync/internal/types"
)

// MissingForSync returns the capability a node lacks to be mirrored locally,
// or "" when it is syncable. Folders need traversal, files need download.
func MissingForSync(node types.RemoteNode) string {
	if node.IsFolder() {
		if !node.Can(types.CapListFolderContent) {
			return types.CapListFolderContent
		}
		return ""
	}
	if !node.Can(types.CapDownloadDocument) {
		return types.CapDownloadDocument
	}
	return ""
}

// CanCreateIn reports whether new children may be added under folder
func CanCreateIn(folder types.RemoteNode) bool {
	return folder.Can(types.CapCreateDocument)
}

// CanEdit reports whether the node's content may be replaced
func CanEdit(node types.RemoteNode) bool {
	return node.Can(types.CapEditDocumentContent)
}

// CanDelete reports whether the node may be deleted
func CanDelete(node types.RemoteNode) bool {
	return node.Can(types.CapDeleteDocument)
}

// DeniedReason formats the skip reason recorded for a missing capability
func DeniedReason(capability string) string {
	return "permission denied: missing " + capability
}
