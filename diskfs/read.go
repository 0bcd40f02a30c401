package diskfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fspath"
)

// LoadTextFile returns the content of the file at path.
func (fs *FS) LoadTextFile(ctx context.Context, path string) (string, error) {
	if fspath.HasDotSegments(path) {
		return "", fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	clean := fspath.Clean(path)
	if fs.hidden(clean) {
		return "", fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	host := fs.hostPath(clean)
	info, err := os.Lstat(host)
	if missing(err) {
		return "", fserr.Newf(fserr.KindNotFound, "no file at %q", clean)
	}
	if err != nil {
		return "", fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", clean))
	}
	if info.IsDir() {
		return "", fserr.Newf(fserr.KindTypeMismatch, "%q is a directory, not a file", clean)
	}
	if !info.Mode().IsRegular() {
		return "", fserr.Newf(fserr.KindUnsupported, "unsupported node kind at %q", clean)
	}

	data, err := os.ReadFile(host)
	if err != nil {
		return "", fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("read %q", clean))
	}
	return string(data), nil
}

// LoadDirectoryTree returns a snapshot of the subtree at path ("" for the
// whole tree) with ignored paths filtered out.
func (fs *FS) LoadDirectoryTree(ctx context.Context, path string) (*reactivefs.Directory, error) {
	if fspath.HasDotSegments(path) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	clean := fspath.Clean(path)
	if fs.hidden(clean) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	host := fs.hostPath(clean)
	info, err := os.Lstat(host)
	if missing(err) {
		return nil, fserr.Newf(fserr.KindNotFound, "no directory at %q", clean)
	}
	if err != nil {
		return nil, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", clean))
	}
	if !info.IsDir() {
		return nil, nonDirErr(info, clean)
	}
	return fs.snapshot(host, fspath.Base(clean), clean)
}

// LoadDirectoryChildren returns one level of visible children as File and
// ShallowDirectory nodes, in name order.
func (fs *FS) LoadDirectoryChildren(ctx context.Context, path string) ([]reactivefs.Node, error) {
	if fspath.HasDotSegments(path) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	clean := fspath.Clean(path)
	if fs.hidden(clean) {
		return nil, fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	host := fs.hostPath(clean)
	info, err := os.Lstat(host)
	if missing(err) {
		return nil, fserr.Newf(fserr.KindNotFound, "no directory at %q", clean)
	}
	if err != nil {
		return nil, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", clean))
	}
	if !info.IsDir() {
		return nil, nonDirErr(info, clean)
	}

	entries, err := os.ReadDir(host)
	if err != nil {
		return nil, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("read directory %q", clean))
	}
	children := make([]reactivefs.Node, 0, len(entries))
	for _, entry := range entries {
		childPath := fspath.Join(clean, entry.Name())
		if fs.ignored(childPath) {
			continue
		}
		switch {
		case entry.IsDir():
			children = append(children, reactivefs.NewShallowDirectory(entry.Name(), childPath))
		case entry.Type().IsRegular():
			data, rerr := os.ReadFile(filepath.Join(host, entry.Name()))
			if rerr != nil {
				return nil, fserr.Wrap(rerr, fserr.KindUnexpected, fmt.Sprintf("read %q", childPath))
			}
			children = append(children, reactivefs.NewFile(entry.Name(), childPath, string(data)))
		}
	}
	return children, nil
}

// Stat reports the coarse node type at path. Ignored paths are invisible,
// so they stat as missing.
func (fs *FS) Stat(ctx context.Context, path string) (reactivefs.Stats, error) {
	clean := fspath.Clean(path)
	if fspath.HasDotSegments(path) || fs.hidden(clean) {
		return reactivefs.Stats{}, fserr.Newf(fserr.KindNotFound, "no node at %q", clean)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	info, err := os.Lstat(fs.hostPath(clean))
	if missing(err) {
		return reactivefs.Stats{}, fserr.Newf(fserr.KindNotFound, "no node at %q", clean)
	}
	if err != nil {
		return reactivefs.Stats{}, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", clean))
	}
	switch {
	case info.IsDir():
		return reactivefs.Stats{Type: reactivefs.DirType}, nil
	case info.Mode().IsRegular():
		return reactivefs.Stats{Type: reactivefs.FileType}, nil
	default:
		return reactivefs.Stats{}, fserr.Newf(fserr.KindUnsupported, "unsupported node kind at %q", clean)
	}
}

// snapshot materializes the directory at hostPath as a detached node tree,
// with ignored children filtered, siblings in name order and unsupported
// entry kinds skipped.
func (fs *FS) snapshot(hostPath, name, path string) (*reactivefs.Directory, error) {
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return nil, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("read directory %q", path))
	}

	children := make([]reactivefs.Node, 0, len(entries))
	for _, entry := range entries {
		childPath := fspath.Join(path, entry.Name())
		if fs.ignored(childPath) {
			continue
		}
		switch {
		case entry.IsDir():
			child, cerr := fs.snapshot(filepath.Join(hostPath, entry.Name()), entry.Name(), childPath)
			if cerr != nil {
				return nil, cerr
			}
			children = append(children, child)
		case entry.Type().IsRegular():
			data, rerr := os.ReadFile(filepath.Join(hostPath, entry.Name()))
			if rerr != nil {
				return nil, fserr.Wrap(rerr, fserr.KindUnexpected, fmt.Sprintf("read %q", childPath))
			}
			children = append(children, reactivefs.NewFile(entry.Name(), childPath, string(data)))
		}
	}
	return reactivefs.NewDirectory(name, path, children), nil
}
