// Package fsevent defines the change notifications every filesystem
// implementation emits and the per-instance emitter that dispatches them.
//
// Events are notifications of completed mutations. An implementation emits
// them synchronously, after the mutation is applied and before the
// triggering operation returns, so a subscriber registered before the call
// observes the event no later than the call's completion. Each filesystem
// instance owns its own Emitter; emitters are never shared process-wide.
package fsevent

// Event names. These are wire values: the RPC bridge publishes events
// under these names and clients re-emit them verbatim.
const (
	FileCreated      = "fileCreated"
	FileChanged      = "fileChanged"
	FileDeleted      = "fileDeleted"
	DirectoryCreated = "directoryCreated"
	DirectoryDeleted = "directoryDeleted"
	UnexpectedError  = "unexpectedError"
)

// Event is the interface all event variants implement.
type Event interface {
	// EventName returns the unique name for this event type (e.g. "fileCreated")
	EventName() string
}

// FileCreatedEvent is emitted when a file comes into existence.
type FileCreatedEvent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (e FileCreatedEvent) EventName() string { return FileCreated }

// FileChangedEvent is emitted when an existing file's content is replaced
// with different content. Saving identical content emits nothing.
type FileChangedEvent struct {
	Path       string `json:"path"`
	NewContent string `json:"newContent"`
}

func (e FileChangedEvent) EventName() string { return FileChanged }

// FileDeletedEvent is emitted when a file is removed.
type FileDeletedEvent struct {
	Path string `json:"path"`
}

func (e FileDeletedEvent) EventName() string { return FileDeleted }

// DirectoryCreatedEvent is emitted once per directory that comes into
// existence, including ancestors created implicitly by a deeper write.
type DirectoryCreatedEvent struct {
	Path string `json:"path"`
}

func (e DirectoryCreatedEvent) EventName() string { return DirectoryCreated }

// DirectoryDeletedEvent is emitted when a directory is removed. A
// recursive deletion emits one event per directory in the removed
// subtree, parent before children.
type DirectoryDeletedEvent struct {
	Path string `json:"path"`
}

func (e DirectoryDeletedEvent) EventName() string { return DirectoryDeleted }

// UnexpectedErrorEvent reports a failure of an implementation's own
// best-effort internal reconciliation. It is a notification, not an error
// return: the operation that triggered the reconciliation does not fail.
type UnexpectedErrorEvent struct {
	Detail string `json:"detail"`
}

func (e UnexpectedErrorEvent) EventName() string { return UnexpectedError }
