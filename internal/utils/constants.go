package utils

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Transfer configuration
const (
	DefaultDownloadAttempts = 3
	DefaultWorkers          = 4
	DefaultSyncIntervalSecs = 300
)

// TempFilePrefix marks in-flight downloads; the local scanner never reports them
const TempFilePrefix = ".docsync-tmp-"

// Schema version
const SchemaVersion = "1.0"

// Application identity
const (
	AppName          = "docsync"
	KeyringService   = "docsync"
	DatabaseFileName = "docsync.db"
	DaemonLockName   = "daemon.lock"
	FolderLockDir    = "locks"
)
