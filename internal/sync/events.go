package sync

import (
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/docsync/internal/types"
)

// StatusEvent is emitted on every status transition
type StatusEvent struct {
	FolderID  string           `json:"folderId"`
	OldStatus types.SyncStatus `json:"oldStatus"`
	NewStatus types.SyncStatus `json:"newStatus"`
	LastError string           `json:"lastError,omitempty"`
	At        time.Time        `json:"at"`
}

// DecisionEvent is emitted when a conflict waits for an external decision
type DecisionEvent struct {
	FolderID      string `json:"folderId"`
	RelativePath  string `json:"relativePath"`
	LocalSummary  string `json:"localSummary"`
	RemoteSummary string `json:"remoteSummary"`
}

// Notifier receives engine events. Calls are made synchronously from the
// goroutine running the pass, so implementations must not block.
type Notifier interface {
	StatusChanged(StatusEvent)
	DecisionRequired(DecisionEvent)
}

type noopNotifier struct{}

func (noopNotifier) StatusChanged(StatusEvent)      {}
func (noopNotifier) DecisionRequired(DecisionEvent) {}

// ChannelNotifier forwards events to buffered channels. An event a full
// channel cannot take is dropped and counted, so a slow reader never stalls
// a pass; the folder record and pending decisions in the store stay
// authoritative.
type ChannelNotifier struct {
	Status    chan StatusEvent
	Decisions chan DecisionEvent

	dropped atomic.Uint64
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{
		Status:    make(chan StatusEvent, buffer),
		Decisions: make(chan DecisionEvent, buffer),
	}
}

func (n *ChannelNotifier) StatusChanged(ev StatusEvent) {
	select {
	case n.Status <- ev:
	default:
		n.dropped.Add(1)
	}
}

func (n *ChannelNotifier) DecisionRequired(ev DecisionEvent) {
	select {
	case n.Decisions <- ev:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns how many events have been dropped so far
func (n *ChannelNotifier) Dropped() uint64 {
	return n.dropped.Load()
}

// NotifierFuncs adapts plain functions to Notifier; nil fields are ignored
type NotifierFuncs struct {
	OnStatus   func(StatusEvent)
	OnDecision func(DecisionEvent)
}

func (n NotifierFuncs) StatusChanged(ev StatusEvent) {
	if n.OnStatus != nil {
		n.OnStatus(ev)
	}
}

func (n NotifierFuncs) DecisionRequired(ev DecisionEvent) {
	if n.OnDecision != nil {
		n.OnDecision(ev)
	}
}
