package memfs

import (
	"context"
	"slices"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fspath"
)

// LoadTextFile returns the content of the file at path. A file created
// with no content yields "".
func (fs *FS) LoadTextFile(ctx context.Context, path string) (string, error) {
	if fspath.HasDotSegments(path) {
		return "", fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	segs := fspath.Split(path)
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return "", fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.locateLocked(segs)
	if n == nil {
		return "", fserr.Newf(fserr.KindNotFound, "no file at %q", clean)
	}
	if n.dir {
		return "", fserr.Newf(fserr.KindTypeMismatch, "%q is a directory, not a file", clean)
	}
	return n.content, nil
}

// LoadDirectoryTree returns a deep, detached snapshot of the subtree at
// path ("" for the whole tree). Mutating the snapshot never affects the
// store, and ignored paths are filtered out of it.
func (fs *FS) LoadDirectoryTree(ctx context.Context, path string) (*reactivefs.Directory, error) {
	if fspath.HasDotSegments(path) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	segs := fspath.Split(path)
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.locateLocked(segs)
	if n == nil {
		return nil, fserr.Newf(fserr.KindNotFound, "no directory at %q", clean)
	}
	if !n.dir {
		return nil, fserr.Newf(fserr.KindTypeMismatch, "%q is a file, not a directory", clean)
	}
	return fs.snapshotLocked(n, clean), nil
}

// LoadDirectoryChildren returns one level of visible children as File and
// ShallowDirectory nodes, in name order.
func (fs *FS) LoadDirectoryChildren(ctx context.Context, path string) ([]reactivefs.Node, error) {
	if fspath.HasDotSegments(path) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	segs := fspath.Split(path)
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.locateLocked(segs)
	if n == nil {
		return nil, fserr.Newf(fserr.KindNotFound, "no directory at %q", clean)
	}
	if !n.dir {
		return nil, fserr.Newf(fserr.KindTypeMismatch, "%q is a file, not a directory", clean)
	}

	children := make([]reactivefs.Node, 0, len(n.children))
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		childPath := fspath.Join(clean, name)
		if fs.ignored(childPath) {
			continue
		}
		if child := n.children[name]; child.dir {
			children = append(children, reactivefs.NewShallowDirectory(name, childPath))
		} else {
			children = append(children, reactivefs.NewFile(name, childPath, child.content))
		}
	}
	return children, nil
}

// Stat reports the coarse node type at path. Ignored paths are invisible,
// so they stat as missing.
func (fs *FS) Stat(ctx context.Context, path string) (reactivefs.Stats, error) {
	segs := fspath.Split(path)
	clean := fspath.Join(segs...)
	if fspath.HasDotSegments(path) || fs.hidden(clean) {
		return reactivefs.Stats{}, fserr.Newf(fserr.KindNotFound, "no node at %q", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.locateLocked(segs)
	if n == nil {
		return reactivefs.Stats{}, fserr.Newf(fserr.KindNotFound, "no node at %q", clean)
	}
	if n.dir {
		return reactivefs.Stats{Type: reactivefs.DirType}, nil
	}
	return reactivefs.Stats{Type: reactivefs.FileType}, nil
}

// snapshotLocked materializes a detached copy of the subtree at n, with
// ignored children filtered and siblings ordered by name.
func (fs *FS) snapshotLocked(n *node, path string) *reactivefs.Directory {
	children := make([]reactivefs.Node, 0, len(n.children))
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
		if child := n.children[name]; child.dir {
			children = append(children, fs.snapshotLocked(child, childPath))
		} else {
			children = append(children, reactivefs.NewFile(name, childPath, child.content))
		}
	}
	return reactivefs.NewDirectory(n.name, path, children)
}
