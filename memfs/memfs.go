// Package memfs is the in-memory reference implementation of the
// reactivefs contract. It defines ground-truth semantics for tree shape,
// ignore filtering and event emission; every other backend is expected to
// be indistinguishable from it through the contract surface.
package memfs

import (
	"context"
	"slices"
	"sync"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
	"github.com/wix/reactive-fs/fspath"
	"github.com/wix/reactive-fs/ignore"
	"github.com/wix/reactive-fs/internal/util"
)

// node is a tree entry. A directory exclusively owns its children; there
// are no back references and no cycles.
type node struct {
	name     string
	dir      bool
	content  string
	children map[string]*node
}

func newDir(name string) *node {
	return &node{name: name, dir: true, children: make(map[string]*node)}
}

// FS is the canonical in-memory store. Every operation validates, then
// mutates the tree atomically under one lock, so a failed operation leaves
// the tree untouched and no caller observes a torn write. Events are
// dispatched after the lock is released and before the operation returns,
// which lets listeners re-enter the store safely.
type FS struct {
	mu      sync.Mutex
	root    *node
	ignored ignore.Predicate
	events  *fsevent.Emitter
}

var _ reactivefs.FileSystem = (*FS)(nil)

// Option configures a store at construction. The configuration is fixed
// for the store's lifetime.
type Option func(*FS)

// WithIgnore sets the ignore predicate. Paths it matches, and their whole
// subtrees, are invisible to every operation.
func WithIgnore(pred ignore.Predicate) Option {
	return func(fs *FS) {
		if pred != nil {
			fs.ignored = pred
		}
	}
}

// New creates an empty store holding only the root directory.
func New(opts ...Option) *FS {
	fs := &FS{
		root:    newDir(""),
		ignored: ignore.Nothing,
		events:  fsevent.NewEmitter(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// SaveFile writes content to the file at path, creating it and any missing
// ancestor directories. One directoryCreated fires per ancestor that comes
// into existence, then fileCreated or fileChanged for the file itself.
// Saving identical content mutates nothing and emits nothing.
func (fs *FS) SaveFile(ctx context.Context, path, content string) error {
	logger := util.GetLogger("memfs.SaveFile")

	segs := fspath.Split(path)
	if len(segs) == 0 {
		return fserr.New(fserr.KindIllegalPath, "cannot save a file at the root")
	}
	if fspath.HasDotSegments(path) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	events, err := fs.saveLocked(segs, content)
	fs.mu.Unlock()
	if err != nil {
		return err
	}

	fs.emit(events)
	logger.Debug().Str("path", clean).Msg("Saved file")
	return nil
}

// DeleteFile removes the file at path. Missing and ignored targets are
// tolerated silently; existence is checked opportunistically, not
// guaranteed race-free.
func (fs *FS) DeleteFile(ctx context.Context, path string) error {
	logger := util.GetLogger("memfs.DeleteFile")

	segs := fspath.Split(path)
	if len(segs) == 0 {
		return fserr.New(fserr.KindIllegalPath, "cannot delete the root")
	}
	if fspath.HasDotSegments(path) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return nil
	}

	fs.mu.Lock()
	events, err := fs.deleteFileLocked(segs)
	fs.mu.Unlock()
	if err != nil {
		return err
	}

	fs.emit(events)
	if len(events) > 0 {
		logger.Debug().Str("path", clean).Msg("Deleted file")
	}
	return nil
}

// DeleteDirectory removes the directory at path. Without recursive it
// refuses a non-empty directory with NotEmpty. On success it emits
// directoryDeleted for the directory, then deletion events for the removed
// subtree, parent before children.
func (fs *FS) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	logger := util.GetLogger("memfs.DeleteDirectory")

	segs := fspath.Split(path)
	if len(segs) == 0 {
		return fserr.New(fserr.KindIllegalPath, "cannot delete the root")
	}
	if fspath.HasDotSegments(path) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return nil
	}

	fs.mu.Lock()
	events, err := fs.deleteDirLocked(segs, recursive)
	fs.mu.Unlock()
	if err != nil {
		return err
	}

	fs.emit(events)
	if len(events) > 0 {
		logger.Debug().Str("path", clean).Bool("recursive", recursive).Msg("Deleted directory")
	}
	return nil
}

// EnsureDirectory creates the directory at path along with any missing
// ancestors, emitting directoryCreated once per segment that comes into
// existence. It is equivalent to `mkdir -p`: re-ensuring an existing
// directory succeeds without events.
func (fs *FS) EnsureDirectory(ctx context.Context, path string) error {
	logger := util.GetLogger("memfs.EnsureDirectory")

	if fspath.HasDotSegments(path) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	segs := fspath.Split(path)
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	_, created, err := fs.ensureLocked(segs)
	fs.mu.Unlock()
	if err != nil {
		return err
	}

	events := make([]fsevent.Event, 0, len(created))
	for _, dir := range created {
		events = append(events, fsevent.DirectoryCreatedEvent{Path: dir})
	}
	fs.emit(events)
	if len(created) > 0 {
		logger.Debug().Str("path", clean).Int("created", len(created)).Msg("Created directory(s)")
	}
	return nil
}

// Events returns the store's private emitter.
func (fs *FS) Events() *fsevent.Emitter { return fs.events }

func (fs *FS) hidden(path string) bool {
	return ignore.Hidden(fs.ignored, path)
}

func (fs *FS) emit(events []fsevent.Event) {
	for _, ev := range events {
		fs.events.Emit(ev)
	}
}

// locateLocked resolves segs to a node, or nil when a segment is missing
// or a file sits mid-path.
func (fs *FS) locateLocked(segs []string) *node {
	cur := fs.root
	for _, name := range segs {
		if !cur.dir {
			return nil
		}
		child, ok := cur.children[name]
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

// ensureLocked walks segs from the root, creating missing directories, and
// returns the leaf plus the accumulated path of every directory created.
// Existing segments are validated before anything is created: an error can
// only arise on an existing node, and after the first creation every
// deeper segment is necessarily missing, so a failure leaves the tree
// unchanged.
func (fs *FS) ensureLocked(segs []string) (*node, []string, error) {
	cur := fs.root
	var created []string
	for i, name := range segs {
		if child, ok := cur.children[name]; ok {
			if !child.dir {
				return nil, nil, fserr.Newf(fserr.KindTypeMismatch, "%q is a file, not a directory", fspath.Join(segs[:i+1]...))
			}
			cur = child
			continue
		}
		child := newDir(name)
		cur.children[name] = child
		created = append(created, fspath.Join(segs[:i+1]...))
		cur = child
	}
	return cur, created, nil
}

func (fs *FS) saveLocked(segs []string, content string) ([]fsevent.Event, error) {
	full := fspath.Join(segs...)
	parent, created, err := fs.ensureLocked(segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}

	events := make([]fsevent.Event, 0, len(created)+1)
	for _, dir := range created {
		events = append(events, fsevent.DirectoryCreatedEvent{Path: dir})
	}

	name := segs[len(segs)-1]
	existing, ok := parent.children[name]
	switch {
	case !ok:
		parent.children[name] = &node{name: name, content: content}
		events = append(events, fsevent.FileCreatedEvent{Path: full, Content: content})
	case existing.dir:
		return nil, fserr.Newf(fserr.KindTypeMismatch, "%q is a directory, not a file", full)
	case existing.content == content:
		return nil, nil
	default:
		existing.content = content
		events = append(events, fsevent.FileChangedEvent{Path: full, NewContent: content})
	}
	return events, nil
}

func (fs *FS) deleteFileLocked(segs []string) ([]fsevent.Event, error) {
	full := fspath.Join(segs...)
	parent := fs.locateLocked(segs[:len(segs)-1])
	if parent == nil || !parent.dir {
		return nil, nil
	}
	name := segs[len(segs)-1]
	target, ok := parent.children[name]
	if !ok {
		return nil, nil
	}
	if target.dir {
		return nil, fserr.Newf(fserr.KindTypeMismatch, "%q is a directory, not a file", full)
	}
	delete(parent.children, name)
	return []fsevent.Event{fsevent.FileDeletedEvent{Path: full}}, nil
}

func (fs *FS) deleteDirLocked(segs []string, recursive bool) ([]fsevent.Event, error) {
	full := fspath.Join(segs...)
	parent := fs.locateLocked(segs[:len(segs)-1])
	if parent == nil || !parent.dir {
		return nil, nil
	}
	name := segs[len(segs)-1]
	target, ok := parent.children[name]
	if !ok {
		return nil, nil
	}
	if !target.dir {
		return nil, fserr.Newf(fserr.KindTypeMismatch, "%q is a file, not a directory", full)
	}
	if !recursive && len(target.children) > 0 {
		return nil, fserr.Newf(fserr.KindNotEmpty, "directory %q is not empty", full)
	}
	delete(parent.children, name)

	var events []fsevent.Event
	fs.collectDeleted(target, full, &events)
	return events, nil
}

// collectDeleted walks a detached subtree in pre-order, recording one
// deletion event per visible node. Siblings are visited in name order.
// Ignored subtrees are removed without events; they were never visible.
func (fs *FS) collectDeleted(n *node, path string, events *[]fsevent.Event) {
	if !n.dir {
		*events = append(*events, fsevent.FileDeletedEvent{Path: path})
		return
	}
	*events = append(*events, fsevent.DirectoryDeletedEvent{Path: path})
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		childPath := fspath.Join(path, name)
		if fs.ignored(childPath) {
			continue
		}
		fs.collectDeleted(n.children[name], childPath, events)
	}
}
