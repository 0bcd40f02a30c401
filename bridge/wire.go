// Package bridge projects the reactivefs contract over a websocket. The
// Server wraps one implementation and exposes one remote procedure per
// contract operation plus a publish stream for its events; the Client
// implements the contract purely by issuing those calls and re-emitting
// the published events. Both ends are scoped to a realm: a namespace
// identifier that must match at handshake for a client to attach.
package bridge

import (
	"encoding/json"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
)

// Frame types. Every websocket message is one JSON-encoded Frame.
const (
	FrameHello   = "hello"   // client → server, opens the handshake
	FrameWelcome = "welcome" // server → client, accepts or rejects it
	FrameCall    = "call"    // client → server, one remote procedure call
	FrameResult  = "result"  // server → client, settles a call by id
	FrameEvent   = "event"   // server → client, one published event
)

// Remote procedure names, one per contract operation.
const (
	ProcSaveFile              = "saveFile"
	ProcDeleteFile            = "deleteFile"
	ProcDeleteDirectory       = "deleteDirectory"
	ProcEnsureDirectory       = "ensureDirectory"
	ProcLoadTextFile          = "loadTextFile"
	ProcLoadDirectoryTree     = "loadDirectoryTree"
	ProcLoadDirectoryChildren = "loadDirectoryChildren"
	ProcStat                  = "stat"
)

// Frame is the single wire message shape. Which fields are meaningful
// depends on Type; the rest stay empty and are omitted from the JSON.
type Frame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`     // call correlation id
	Realm  string          `json:"realm,omitempty"`  // hello and welcome
	Proc   string          `json:"proc,omitempty"`   // call
	Args   *CallArgs       `json:"args,omitempty"`   // call
	Result json.RawMessage `json:"result,omitempty"` // result
	Error  *fserr.Error    `json:"error,omitempty"`  // result and welcome
	Event  string          `json:"event,omitempty"`  // event name
	Data   json.RawMessage `json:"data,omitempty"`   // event payload
	TS     int64           `json:"ts,omitempty"`     // event publish time, Unix ms
}

// CallArgs carries the arguments of every procedure; unused fields are
// omitted on the wire.
type CallArgs struct {
	Path      string `json:"path"`
	Content   string `json:"content,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

// TextResult is the result payload of loadTextFile.
type TextResult struct {
	Content string `json:"content"`
}

// ChildrenResult is the result payload of loadDirectoryChildren.
type ChildrenResult struct {
	Children []*NodePayload `json:"children"`
}

// NodePayload is the wire form of a snapshot node. Directories from
// loadDirectoryTree carry their children recursively; directories from
// loadDirectoryChildren come back childless and decode shallow.
type NodePayload struct {
	Type     reactivefs.NodeType `json:"type"`
	Name     string              `json:"name"`
	Path     string              `json:"path"`
	Content  string              `json:"content,omitempty"`
	Children []*NodePayload      `json:"children,omitempty"`
}

// EncodeNode converts a snapshot node to its wire form.
func EncodeNode(n reactivefs.Node) *NodePayload {
	payload := &NodePayload{Type: n.Type(), Name: n.Name(), Path: n.Path()}
	switch v := n.(type) {
	case *reactivefs.File:
		payload.Content = v.Content()
	case *reactivefs.Directory:
		payload.Children = make([]*NodePayload, 0, len(v.Children()))
		for _, child := range v.Children() {
			payload.Children = append(payload.Children, EncodeNode(child))
		}
	}
	return payload
}

// DecodeTree rebuilds a deep Directory snapshot from its wire form.
func (p *NodePayload) DecodeTree() (*reactivefs.Directory, error) {
	if p.Type != reactivefs.DirType {
		return nil, fserr.Newf(fserr.KindConnection, "expected a directory payload, got %q", p.Type)
	}
	children := make([]reactivefs.Node, 0, len(p.Children))
	for _, child := range p.Children {
		switch child.Type {
		case reactivefs.FileType:
			children = append(children, reactivefs.NewFile(child.Name, child.Path, child.Content))
		case reactivefs.DirType:
			dir, err := child.DecodeTree()
			if err != nil {
				return nil, err
			}
			children = append(children, dir)
		default:
			return nil, fserr.Newf(fserr.KindConnection, "unknown node type %q", child.Type)
		}
	}
	return reactivefs.NewDirectory(p.Name, p.Path, children), nil
}

// DecodeChild rebuilds a single-level listing entry: files materialize,
// directories stay shallow.
func (p *NodePayload) DecodeChild() (reactivefs.Node, error) {
	switch p.Type {
	case reactivefs.FileType:
		return reactivefs.NewFile(p.Name, p.Path, p.Content), nil
	case reactivefs.DirType:
		return reactivefs.NewShallowDirectory(p.Name, p.Path), nil
	default:
		return nil, fserr.Newf(fserr.KindConnection, "unknown node type %q", p.Type)
	}
}
