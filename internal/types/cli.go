package types

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// CLIError is the machine-readable error envelope
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// CLIWarning is a non-fatal notice attached to command output
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// CLIOutput is the envelope for every command result
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion"`
	TraceID       string       `json:"traceId"`
	Command       string       `json:"command"`
	Data          interface{}  `json:"data"`
	Warnings      []CLIWarning `json:"warnings"`
	Errors        []CLIError   `json:"errors"`
}

// GlobalFlags holds persistent command-line flags
type GlobalFlags struct {
	Account      string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	Config       string
	LogFile      string
	DryRun       bool
	JSON         bool
}

// RequestType classifies remote calls for logging
type RequestType string

const (
	RequestTypeList     RequestType = "list"
	RequestTypeGet      RequestType = "get"
	RequestTypeDownload RequestType = "download"
	RequestTypeMutation RequestType = "mutation"
)

// RequestContext carries per-call tracing information
type RequestContext struct {
	AccountKey  string      `json:"accountKey"`
	FolderID    string      `json:"folderId,omitempty"`
	NodeIDs     []string    `json:"nodeIds,omitempty"`
	RequestType RequestType `json:"requestType"`
	TraceID     string      `json:"traceId"`
}

// TableRenderer is implemented by command results that have a table form.
// Results without one fall back to JSON in table mode.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	// EmptyMessage is printed instead of an empty table; "" prints nothing.
	EmptyMessage() string
}
