package fsevent

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes ev's payload as JSON and returns it alongside the event
// name, ready to be placed in a transport frame.
func Marshal(ev Event) (string, json.RawMessage, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s event: %w", ev.EventName(), err)
	}
	return ev.EventName(), data, nil
}

// Unmarshal decodes an event received off the wire. The name selects the
// concrete variant; unknown names are an error so transport bugs surface
// instead of silently dropping notifications.
func Unmarshal(name string, data json.RawMessage) (Event, error) {
	var ev Event
	switch name {
	case FileCreated:
		ev = &FileCreatedEvent{}
	case FileChanged:
		ev = &FileChangedEvent{}
	case FileDeleted:
		ev = &FileDeletedEvent{}
	case DirectoryCreated:
		ev = &DirectoryCreatedEvent{}
	case DirectoryDeleted:
		ev = &DirectoryDeletedEvent{}
	case UnexpectedError:
		ev = &UnexpectedErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown event name %q", name)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s event: %w", name, err)
	}
	return deref(ev), nil
}

// deref returns the value the decoded pointer wraps so callers always see
// the same concrete types Emit produces.
func deref(ev Event) Event {
	switch v := ev.(type) {
	case *FileCreatedEvent:
		return *v
	case *FileChangedEvent:
		return *v
	case *FileDeletedEvent:
		return *v
	case *DirectoryCreatedEvent:
		return *v
	case *DirectoryDeletedEvent:
		return *v
	case *UnexpectedErrorEvent:
		return *v
	default:
		return ev
	}
}
