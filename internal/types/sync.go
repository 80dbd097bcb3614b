package types

import (
	"strings"
	"time"
)

// SyncStatus is the lifecycle state of a SyncFolder
type SyncStatus string

const (
	StatusPaused    SyncStatus = "paused"
	StatusActive    SyncStatus = "active"
	StatusSyncing   SyncStatus = "syncing"
	StatusCompleted SyncStatus = "completed"
	StatusError     SyncStatus = "error"
)

// SyncDirection limits which side a folder may modify
type SyncDirection string

const (
	DirectionBidirectional SyncDirection = "bidirectional"
	DirectionDownloadOnly  SyncDirection = "downloadOnly"
	DirectionUploadOnly    SyncDirection = "uploadOnly"
)

// AllowsDownload reports whether the direction permits changes to the local side
func (d SyncDirection) AllowsDownload() bool {
	return d != DirectionUploadOnly
}

// AllowsUpload reports whether the direction permits changes to the remote side
func (d SyncDirection) AllowsUpload() bool {
	return d != DirectionDownloadOnly
}

// Valid reports whether d is a known direction
func (d SyncDirection) Valid() bool {
	switch d {
	case DirectionBidirectional, DirectionDownloadOnly, DirectionUploadOnly:
		return true
	}
	return false
}

// ConflictPolicy selects how a both-sides-changed item is resolved
type ConflictPolicy string

const (
	PolicyRemoteWins ConflictPolicy = "remoteWins"
	PolicyLocalWins  ConflictPolicy = "localWins"
	PolicyCreateCopy ConflictPolicy = "createCopy"
	PolicyAskUser    ConflictPolicy = "askUser"
)

// Valid reports whether p is a known policy
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyRemoteWins, PolicyLocalWins, PolicyCreateCopy, PolicyAskUser:
		return true
	}
	return false
}

// Decisive reports whether the policy resolves a conflict without a user decision
func (p ConflictPolicy) Decisive() bool {
	return p.Valid() && p != PolicyAskUser
}

// ParseDirection accepts the canonical names plus the CLI aliases push/pull
func ParseDirection(value string) (SyncDirection, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "bidirectional", "both":
		return DirectionBidirectional, true
	case "downloadonly", "download-only", "pull":
		return DirectionDownloadOnly, true
	case "uploadonly", "upload-only", "push":
		return DirectionUploadOnly, true
	}
	return "", false
}

// ParsePolicy accepts the canonical names plus dashed aliases
func ParsePolicy(value string) (ConflictPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "remotewins", "remote-wins":
		return PolicyRemoteWins, true
	case "localwins", "local-wins":
		return PolicyLocalWins, true
	case "", "createcopy", "create-copy", "rename-both":
		return PolicyCreateCopy, true
	case "askuser", "ask-user", "ask":
		return PolicyAskUser, true
	}
	return "", false
}

// NodeKind distinguishes folders from files
type NodeKind string

const (
	KindFolder NodeKind = "folder"
	KindFile   NodeKind = "file"
)

// Capability names reported by the document service
const (
	CapListFolderContent   = "list_folder_content"
	CapDownloadDocument    = "download_document"
	CapCreateDocument      = "create_document"
	CapEditDocumentContent = "edit_document_content"
	CapDeleteDocument      = "delete_document"
)

// Account is one remote identity
type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	ServerURL   string    `json:"serverUrl"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Key is the identity used for credential lookup
func (a Account) Key() string {
	return AccountKey(a.ServerURL, a.Email)
}

// AccountKey builds the credential lookup key for a server and email
func AccountKey(serverURL, email string) string {
	return serverURL + email
}

// NormalizeServerURL lower-cases the URL and strips trailing slashes
func NormalizeServerURL(raw string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// SyncFolder mirrors one remote folder into one local directory
type SyncFolder struct {
	ID                 string         `json:"id"`
	AccountID          string         `json:"accountId"`
	RemoteFolderID     string         `json:"remoteFolderId"`
	RemoteFolderPath   string         `json:"remoteFolderPath"`
	LocalPath          string         `json:"localPath"`
	Status             SyncStatus     `json:"status"`
	SyncDirection      SyncDirection  `json:"syncDirection"`
	ConflictResolution ConflictPolicy `json:"conflictResolution"`
	LastSyncAt         *time.Time     `json:"lastSyncAt,omitempty"`
	LastError          string         `json:"lastError,omitempty"`
	IsEnabled          bool           `json:"isEnabled"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// RemoteNode is a folder or file reported by the document service
type RemoteNode struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ParentID    string    `json:"parentId,omitempty"`
	Kind        NodeKind  `json:"kind"`
	Size        int64     `json:"size,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	Version     string    `json:"version,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsFolder reports whether the node is a folder
func (n RemoteNode) IsFolder() bool {
	return n.Kind == KindFolder
}

// Can reports whether the node grants a capability
func (n RemoteNode) Can(capability string) bool {
	for _, p := range n.Permissions {
		if p == capability {
			return true
		}
	}
	return false
}

// LocalNode is a filesystem entry under a SyncFolder's local path
type LocalNode struct {
	RelativePath string    `json:"relativePath"`
	AbsPath      string    `json:"-"`
	IsDir        bool      `json:"isDir"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum,omitempty"`
	ModifiedAt   time.Time `json:"modifiedAt"`
}

// SnapshotEntry is the last reconciled state of one relative path.
// An empty RemoteID means the path has never existed remotely.
type SnapshotEntry struct {
	FolderID      string    `json:"folderId"`
	RelativePath  string    `json:"relativePath"`
	RemoteID      string    `json:"remoteId,omitempty"`
	RemoteVersion string    `json:"remoteVersion,omitempty"`
	Checksum      string    `json:"checksum,omitempty"`
	IsDir         bool      `json:"isDir"`
	LocalSize     int64     `json:"localSize"`
	LocalModTime  int64     `json:"localModTime"`
	SyncedAt      time.Time `json:"syncedAt"`
}

// PendingDecision is a deferred askUser conflict awaiting an external choice
type PendingDecision struct {
	FolderID      string         `json:"folderId"`
	RelativePath  string         `json:"relativePath"`
	LocalSummary  string         `json:"localSummary"`
	RemoteSummary string         `json:"remoteSummary"`
	Decision      ConflictPolicy `json:"decision,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	DecidedAt     *time.Time     `json:"decidedAt,omitempty"`
}
