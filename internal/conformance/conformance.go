// Package conformance is the shared scenario suite for reactivefs
// implementations. Every backend must pass it unchanged: the in-memory
// store, the deadline proxy, the disk adapter and an RPC client fronting
// any of them are expected to be indistinguishable through the contract,
// same results, same error kinds, same event sequences.
package conformance

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
	"github.com/wix/reactive-fs/ignore"
)

// Factory builds a fresh, empty implementation for one scenario, honoring
// the given ignore predicate. Teardown belongs in t.Cleanup.
type Factory func(t *testing.T, pred ignore.Predicate) reactivefs.FileSystem

// Recorder captures every event an implementation emits. It is safe for
// implementations that deliver events from their own goroutines.
type Recorder struct {
	mu     sync.Mutex
	events []fsevent.Event
}

// NewRecorder subscribes a recorder to fs's full event stream.
func NewRecorder(fs reactivefs.FileSystem) *Recorder {
	r := &Recorder{}
	fs.Events().OnAny(func(ev fsevent.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []fsevent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fsevent.Event(nil), r.events...)
}

// Clear drops everything recorded so far.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Run exercises one implementation against the full scenario suite.
func Run(t *testing.T, newFS Factory) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)

		for path, content := range map[string]string{
			"plain.txt":        "hello",
			"nested/deep/f.md": "# heading\n\nbody",
			"empty.txt":        "",
			"unicode.txt":      "snow ☃ and 日本語",
		} {
			require.NoError(t, fs.SaveFile(ctx, path, content))
			got, err := fs.LoadTextFile(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, content, got, "path %q", path)
		}
	})

	t.Run("SaveCreatesAncestors", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)

		require.NoError(t, fs.SaveFile(ctx, "a/b.txt", "hi"))

		tree, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		a, ok := tree.Child("a").(*reactivefs.Directory)
		require.True(t, ok, "root must contain directory a")
		b, ok := a.Child("b.txt").(*reactivefs.File)
		require.True(t, ok, "a must contain file b.txt")
		assert.Equal(t, "hi", b.Content())
	})

	t.Run("SaveEmitsCreationCascade", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		rec := NewRecorder(fs)

		require.NoError(t, fs.SaveFile(ctx, "x/y/z.txt", "deep"))

		// Subscribers registered before the call observe the events no
		// later than the call's completion.
		assert.Equal(t, []fsevent.Event{
			fsevent.DirectoryCreatedEvent{Path: "x"},
			fsevent.DirectoryCreatedEvent{Path: "x/y"},
			fsevent.FileCreatedEvent{Path: "x/y/z.txt", Content: "deep"},
		}, rec.Events())
	})

	t.Run("SaveIdenticalContentIsSilent", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "f.txt", "same"))
		rec := NewRecorder(fs)

		require.NoError(t, fs.SaveFile(ctx, "f.txt", "same"))

		assert.Empty(t, rec.Events())
	})

	t.Run("SaveDifferentContentEmitsChange", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "f.txt", "v1"))
		rec := NewRecorder(fs)

		require.NoError(t, fs.SaveFile(ctx, "f.txt", "v2"))

		assert.Equal(t, []fsevent.Event{
			fsevent.FileChangedEvent{Path: "f.txt", NewContent: "v2"},
		}, rec.Events())
	})

	t.Run("EnsureDirectoryIdempotent", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		rec := NewRecorder(fs)

		require.NoError(t, fs.EnsureDirectory(ctx, "x"))
		assert.Equal(t, []fsevent.Event{
			fsevent.DirectoryCreatedEvent{Path: "x"},
		}, rec.Events(), "first ensure emits exactly one directoryCreated")

		rec.Clear()
		require.NoError(t, fs.EnsureDirectory(ctx, "x"))
		assert.Empty(t, rec.Events(), "second ensure emits nothing")
	})

	t.Run("EnsureDirectoryCreatesChain", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		rec := NewRecorder(fs)

		require.NoError(t, fs.EnsureDirectory(ctx, "a/b/c"))

		assert.Equal(t, []fsevent.Event{
			fsevent.DirectoryCreatedEvent{Path: "a"},
			fsevent.DirectoryCreatedEvent{Path: "a/b"},
			fsevent.DirectoryCreatedEvent{Path: "a/b/c"},
		}, rec.Events())

		stats, err := fs.Stat(ctx, "a/b/c")
		require.NoError(t, err)
		assert.Equal(t, reactivefs.DirType, stats.Type)
	})

	t.Run("DeletionGuard", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "dir/child.txt", "x"))

		err := fs.DeleteDirectory(ctx, "dir", false)
		assert.True(t, fserr.IsKind(err, fserr.KindNotEmpty))

		_, err = fs.LoadTextFile(ctx, "dir/child.txt")
		require.NoError(t, err, "failed delete must leave the tree intact")

		require.NoError(t, fs.DeleteDirectory(ctx, "dir", true))
		_, err = fs.Stat(ctx, "dir")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})

	t.Run("RecursiveDeleteEmitsSubtreeEvents", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "dir/sub/leaf.txt", "l"))
		require.NoError(t, fs.SaveFile(ctx, "dir/top.txt", "t"))
		rec := NewRecorder(fs)

		require.NoError(t, fs.DeleteDirectory(ctx, "dir", true))

		events := rec.Events()
		require.NotEmpty(t, events)
		assert.Equal(t, fsevent.DirectoryDeletedEvent{Path: "dir"}, events[0],
			"the deleted directory itself is announced first")
		assert.ElementsMatch(t, []fsevent.Event{
			fsevent.DirectoryDeletedEvent{Path: "dir"},
			fsevent.DirectoryDeletedEvent{Path: "dir/sub"},
			fsevent.FileDeletedEvent{Path: "dir/sub/leaf.txt"},
			fsevent.FileDeletedEvent{Path: "dir/top.txt"},
		}, events)
		assertParentsFirst(t, events)
	})

	t.Run("MissingTargetTolerance", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		rec := NewRecorder(fs)

		require.NoError(t, fs.DeleteFile(ctx, "never/was.txt"))
		require.NoError(t, fs.DeleteDirectory(ctx, "never", true))

		assert.Empty(t, rec.Events())
	})

	t.Run("RootProtection", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)

		for name, err := range map[string]error{
			"save":      fs.SaveFile(ctx, "", "x"),
			"deleteF":   fs.DeleteFile(ctx, "/"),
			"deleteDir": fs.DeleteDirectory(ctx, "", true),
		} {
			assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath), "%s on root must fail", name)
		}
	})

	t.Run("TypeMismatches", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "file.txt", "x"))
		require.NoError(t, fs.EnsureDirectory(ctx, "dir"))

		assert.True(t, fserr.IsKind(fs.SaveFile(ctx, "dir", "x"), fserr.KindTypeMismatch))
		assert.True(t, fserr.IsKind(fs.DeleteFile(ctx, "dir"), fserr.KindTypeMismatch))
		assert.True(t, fserr.IsKind(fs.DeleteDirectory(ctx, "file.txt", false), fserr.KindTypeMismatch))
		assert.True(t, fserr.IsKind(fs.EnsureDirectory(ctx, "file.txt/sub"), fserr.KindTypeMismatch))

		_, err := fs.LoadTextFile(ctx, "dir")
		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
		_, err = fs.LoadDirectoryTree(ctx, "file.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})

	t.Run("DeleteEmitsFileDeleted", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "gone.txt", "x"))
		rec := NewRecorder(fs)

		require.NoError(t, fs.DeleteFile(ctx, "gone.txt"))

		assert.Equal(t, []fsevent.Event{
			fsevent.FileDeletedEvent{Path: "gone.txt"},
		}, rec.Events())
	})

	t.Run("Stat", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "f.txt", "x"))
		require.NoError(t, fs.EnsureDirectory(ctx, "d"))

		stats, err := fs.Stat(ctx, "f.txt")
		require.NoError(t, err)
		assert.Equal(t, reactivefs.FileType, stats.Type)

		stats, err = fs.Stat(ctx, "d")
		require.NoError(t, err)
		assert.Equal(t, reactivefs.DirType, stats.Type)

		stats, err = fs.Stat(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, reactivefs.DirType, stats.Type, "root is a directory")

		_, err = fs.Stat(ctx, "ghost")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})

	t.Run("ChildrenListing", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "p/b.txt", "b"))
		require.NoError(t, fs.EnsureDirectory(ctx, "p/a"))
		require.NoError(t, fs.SaveFile(ctx, "p/a/deep.txt", "hidden from listing"))

		children, err := fs.LoadDirectoryChildren(ctx, "p")
		require.NoError(t, err)
		require.Len(t, children, 2)

		byName := map[string]reactivefs.Node{}
		for _, c := range children {
			byName[c.Name()] = c
		}
		_, ok := byName["a"].(*reactivefs.ShallowDirectory)
		assert.True(t, ok, "directories list shallow")
		file, ok := byName["b.txt"].(*reactivefs.File)
		require.True(t, ok)
		assert.Equal(t, "b", file.Content())

		_, err = fs.LoadDirectoryChildren(ctx, "ghost")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})

	t.Run("TreeSnapshotIsDetached", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)
		require.NoError(t, fs.SaveFile(ctx, "a/b.txt", "v1"))

		before, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)

		require.NoError(t, fs.SaveFile(ctx, "a/c.txt", "v2"))

		a, ok := before.Child("a").(*reactivefs.Directory)
		require.True(t, ok)
		assert.Len(t, a.Children(), 1, "earlier snapshot must not grow")
	})

	t.Run("IgnoredPathsAreInvisible", func(t *testing.T) {
		fs := newFS(t, ignore.Prefixes("skipped"))

		err := fs.SaveFile(ctx, "skipped/f.txt", "x")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))

		err = fs.EnsureDirectory(ctx, "skipped/deep")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))

		_, err = fs.LoadTextFile(ctx, "skipped/f.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))

		// Deletes tolerate ignored targets silently.
		require.NoError(t, fs.DeleteFile(ctx, "skipped/f.txt"))
		require.NoError(t, fs.DeleteDirectory(ctx, "skipped", true))

		require.NoError(t, fs.SaveFile(ctx, "kept.txt", "x"))
		tree, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		require.Len(t, tree.Children(), 1)
		assert.Equal(t, "kept.txt", tree.Children()[0].Name())
	})

	t.Run("DotSegmentsRejected", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)

		assert.True(t, fserr.IsKind(fs.SaveFile(ctx, "../escape.txt", "x"), fserr.KindIllegalPath))
		assert.True(t, fserr.IsKind(fs.EnsureDirectory(ctx, "a/./b"), fserr.KindIllegalPath))
		assert.True(t, fserr.IsKind(fs.DeleteFile(ctx, ".."), fserr.KindIllegalPath))

		_, err := fs.LoadTextFile(ctx, "a/../b.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))

		_, err = fs.Stat(ctx, "..")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound), "stat reports unaddressable paths as missing")
	})

	t.Run("SeparatorNormalization", func(t *testing.T) {
		fs := newFS(t, ignore.Nothing)

		require.NoError(t, fs.SaveFile(ctx, "/n//m.txt/", "x"))

		content, err := fs.LoadTextFile(ctx, "n/m.txt")
		require.NoError(t, err)
		assert.Equal(t, "x", content)

		tree, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		n, ok := tree.Child("n").(*reactivefs.Directory)
		require.True(t, ok)
		assert.Equal(t, "n/m.txt", n.Children()[0].Path(), "paths come back canonical")
	})
}

// assertParentsFirst checks the pre-order guarantee: a directory's
// deletion event precedes every event under that directory.
func assertParentsFirst(t *testing.T, events []fsevent.Event) {
	t.Helper()
	seenAt := map[string]int{}
	for i, ev := range events {
		if d, ok := ev.(fsevent.DirectoryDeletedEvent); ok {
			seenAt[d.Path] = i
		}
	}
	for i, ev := range events {
		var path string
		switch v := ev.(type) {
		case fsevent.DirectoryDeletedEvent:
			path = v.Path
		case fsevent.FileDeletedEvent:
			path = v.Path
		default:
			continue
		}
		for dir, at := range seenAt {
			if path != dir && strings.HasPrefix(path, dir+"/") {
				assert.Less(t, at, i, "directory %q must be announced before %q", dir, path)
			}
		}
	}
}
