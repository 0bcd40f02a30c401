// Package diskfs adapts a host directory to the reactivefs contract.
// Virtual paths map beneath the adapter's root directory, and events fire
// for mutations made through this instance. Changes other processes make
// to the same directory produce no events and may race the adapter's
// checks; the instance lock only serializes its own callers.
package diskfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
	"github.com/wix/reactive-fs/fspath"
	"github.com/wix/reactive-fs/ignore"
	"github.com/wix/reactive-fs/internal/util"
)

// FS exposes a host directory as a reactive filesystem. Entries that are
// neither regular files nor directories fall outside the contract's node
// model: they are invisible to listings and stat as Unsupported. Symlinks
// are never followed.
type FS struct {
	mu      sync.Mutex
	dir     string
	ignored ignore.Predicate
	events  *fsevent.Emitter
}

var _ reactivefs.FileSystem = (*FS)(nil)

// Option configures an adapter at construction.
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

// New adapts the host directory at dir, creating it if missing.
func New(dir string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root %q: %w", abs, err)
	}
	fs := &FS{
		dir:     abs,
		ignored: ignore.Nothing,
		events:  fsevent.NewEmitter(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

// Root returns the absolute host directory the adapter serves.
func (fs *FS) Root() string { return fs.dir }

// SaveFile writes content to the file at path, creating it and any missing
// ancestor directories. Mutations that fail midway still announce what
// actually changed before the error is returned.
func (fs *FS) SaveFile(ctx context.Context, path, content string) error {
	logger := util.GetLogger("diskfs.SaveFile")

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
	events, err := fs.save(segs, content)
	fs.mu.Unlock()

	fs.emit(events)
	if err != nil {
		return err
	}
	logger.Debug().Str("path", clean).Msg("Saved file")
	return nil
}

// DeleteFile removes the file at path. Missing and ignored targets are
// tolerated silently.
func (fs *FS) DeleteFile(ctx context.Context, path string) error {
	logger := util.GetLogger("diskfs.DeleteFile")

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
	events, err := fs.deleteFile(segs)
	fs.mu.Unlock()

	fs.emit(events)
	if err != nil {
		return err
	}
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
	logger := util.GetLogger("diskfs.DeleteDirectory")

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
	events, err := fs.deleteDir(segs, recursive)
	fs.mu.Unlock()

	fs.emit(events)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		logger.Debug().Str("path", clean).Bool("recursive", recursive).Msg("Deleted directory")
	}
	return nil
}

// EnsureDirectory creates the directory at path along with any missing
// ancestors, emitting directoryCreated once per segment that comes into
// existence.
func (fs *FS) EnsureDirectory(ctx context.Context, path string) error {
	logger := util.GetLogger("diskfs.EnsureDirectory")

	if fspath.HasDotSegments(path) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q contains dot segments", path)
	}
	segs := fspath.Split(path)
	clean := fspath.Join(segs...)
	if fs.hidden(clean) {
		return fserr.Newf(fserr.KindIllegalPath, "path %q is ignored", clean)
	}

	fs.mu.Lock()
	_, events, err := fs.ensureHost(segs)
	fs.mu.Unlock()

	fs.emit(events)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		logger.Debug().Str("path", clean).Int("created", len(events)).Msg("Created directory(s)")
	}
	return nil
}

// Events returns the adapter's private emitter.
func (fs *FS) Events() *fsevent.Emitter { return fs.events }

func (fs *FS) hidden(path string) bool {
	return ignore.Hidden(fs.ignored, path)
}

func (fs *FS) emit(events []fsevent.Event) {
	for _, ev := range events {
		fs.events.Emit(ev)
	}
}

// hostPath maps a clean virtual path beneath the adapter root. Split has
// already dropped separators and the guards rejected dot segments, so the
// result cannot escape the root.
func (fs *FS) hostPath(clean string) string {
	return filepath.Join(fs.dir, filepath.FromSlash(clean))
}

// missing reports whether a stat failed because nothing is there: the
// entry itself absent, or a file occupying a mid-path segment.
func missing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// nonDirErr classifies a collision with an existing non-directory entry.
func nonDirErr(info os.FileInfo, path string) error {
	if info.Mode().IsRegular() {
		return fserr.Newf(fserr.KindTypeMismatch, "%q is a file, not a directory", path)
	}
	return fserr.Newf(fserr.KindUnsupported, "unsupported node kind at %q", path)
}

// ensureHost walks segs beneath the root, creating missing directories,
// and returns the host path of the leaf plus one directoryCreated event
// per directory created. When creation fails midway the events for the
// directories that do exist are still returned alongside the error.
func (fs *FS) ensureHost(segs []string) (string, []fsevent.Event, error) {
	cur := fs.dir
	var events []fsevent.Event
	for i, name := range segs {
		cur = filepath.Join(cur, name)
		virt := fspath.Join(segs[:i+1]...)

		info, err := os.Lstat(cur)
		switch {
		case err == nil && info.IsDir():
		case err == nil:
			return "", events, nonDirErr(info, virt)
		case missing(err):
			if merr := os.Mkdir(cur, 0o755); merr != nil {
				return "", events, fserr.Wrap(merr, fserr.KindUnexpected, fmt.Sprintf("create directory %q", virt))
			}
			events = append(events, fsevent.DirectoryCreatedEvent{Path: virt})
		default:
			return "", events, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", virt))
		}
	}
	return cur, events, nil
}

func (fs *FS) save(segs []string, content string) ([]fsevent.Event, error) {
	full := fspath.Join(segs...)
	hostDir, events, err := fs.ensureHost(segs[:len(segs)-1])
	if err != nil {
		return events, err
	}

	target := filepath.Join(hostDir, segs[len(segs)-1])
	info, err := os.Lstat(target)
	switch {
	case err == nil && info.IsDir():
		return events, fserr.Newf(fserr.KindTypeMismatch, "%q is a directory, not a file", full)
	case err == nil && !info.Mode().IsRegular():
		return events, fserr.Newf(fserr.KindUnsupported, "unsupported node kind at %q", full)
	case err == nil:
		prev, rerr := os.ReadFile(target)
		if rerr != nil {
			return events, fserr.Wrap(rerr, fserr.KindUnexpected, fmt.Sprintf("read %q", full))
		}
		if string(prev) == content {
			return events, nil
		}
		if werr := writeFile(target, content); werr != nil {
			// The write may have truncated the file before failing, so
			// observers are told the state is no longer trustworthy.
			events = append(events, fsevent.UnexpectedErrorEvent{Detail: fmt.Sprintf("write %q: %v", full, werr)})
			return events, fserr.Wrap(werr, fserr.KindUnexpected, fmt.Sprintf("write %q", full))
		}
		return append(events, fsevent.FileChangedEvent{Path: full, NewContent: content}), nil
	case missing(err):
		if werr := writeFile(target, content); werr != nil {
			events = append(events, fsevent.UnexpectedErrorEvent{Detail: fmt.Sprintf("write %q: %v", full, werr)})
			return events, fserr.Wrap(werr, fserr.KindUnexpected, fmt.Sprintf("write %q", full))
		}
		return append(events, fsevent.FileCreatedEvent{Path: full, Content: content}), nil
	default:
		return events, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", full))
	}
}

func writeFile(hostPath, content string) error {
	return os.WriteFile(hostPath, []byte(content), 0o644)
}

func (fs *FS) deleteFile(segs []string) ([]fsevent.Event, error) {
	full := fspath.Join(segs...)
	info, err := os.Lstat(fs.hostPath(full))
	if missing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", full))
	}
	if info.IsDir() {
		return nil, fserr.Newf(fserr.KindTypeMismatch, "%q is a directory, not a file", full)
	}
	if !info.Mode().IsRegular() {
		return nil, fserr.Newf(fserr.KindUnsupported, "unsupported node kind at %q", full)
	}
	if rerr := os.Remove(fs.hostPath(full)); rerr != nil {
		return nil, fserr.Wrap(rerr, fserr.KindUnexpected, fmt.Sprintf("remove %q", full))
	}
	return []fsevent.Event{fsevent.FileDeletedEvent{Path: full}}, nil
}

func (fs *FS) deleteDir(segs []string, recursive bool) ([]fsevent.Event, error) {
	full := fspath.Join(segs...)
	target := fs.hostPath(full)

	info, err := os.Lstat(target)
	if missing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("stat %q", full))
	}
	if !info.IsDir() {
		return nil, nonDirErr(info, full)
	}

	if !recursive {
		entries, rerr := os.ReadDir(target)
		if rerr != nil {
			return nil, fserr.Wrap(rerr, fserr.KindUnexpected, fmt.Sprintf("read directory %q", full))
		}
		if len(entries) > 0 {
			return nil, fserr.Newf(fserr.KindNotEmpty, "directory %q is not empty", full)
		}
		if rerr := os.Remove(target); rerr != nil {
			return nil, fserr.Wrap(rerr, fserr.KindUnexpected, fmt.Sprintf("remove %q", full))
		}
		return []fsevent.Event{fsevent.DirectoryDeletedEvent{Path: full}}, nil
	}

	// The subtree's visible nodes are collected up front; the disk entries
	// are gone by the time the events fire.
	var events []fsevent.Event
	if err := fs.collectDeleted(target, full, &events); err != nil {
		return nil, err
	}
	if rerr := os.RemoveAll(target); rerr != nil {
		// RemoveAll may have removed part of the subtree before failing.
		ev := fsevent.UnexpectedErrorEvent{Detail: fmt.Sprintf("remove %q: %v", full, rerr)}
		return []fsevent.Event{ev}, fserr.Wrap(rerr, fserr.KindUnexpected, fmt.Sprintf("remove %q", full))
	}
	return events, nil
}

// collectDeleted records one deletion event per visible node under the
// directory at hostPath, in pre-order with siblings in name order. Ignored
// subtrees and unsupported entry kinds vanish without events; they were
// never visible.
func (fs *FS) collectDeleted(hostPath, path string, events *[]fsevent.Event) error {
	*events = append(*events, fsevent.DirectoryDeletedEvent{Path: path})
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return fserr.Wrap(err, fserr.KindUnexpected, fmt.Sprintf("read directory %q", path))
	}
	for _, entry := range entries {
		childPath := fspath.Join(path, entry.Name())
		if fs.ignored(childPath) {
			continue
		}
		switch {
		case entry.IsDir():
			if err := fs.collectDeleted(filepath.Join(hostPath, entry.Name()), childPath, events); err != nil {
				return err
			}
		case entry.Type().IsRegular():
			*events = append(*events, fsevent.FileDeletedEvent{Path: childPath})
		}
	}
	return nil
}
