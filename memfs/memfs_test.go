package memfs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
	"github.com/wix/reactive-fs/fspath"
	"github.com/wix/reactive-fs/ignore"
)

// recordEvents registers a catch-all listener and returns the slice it
// appends to. Only safe for single-goroutine tests.
func recordEvents(fs *FS) *[]fsevent.Event {
	events := &[]fsevent.Event{}
	fs.Events().OnAny(func(ev fsevent.Event) { *events = append(*events, ev) })
	return events
}

// plant inserts a node directly into the tree, bypassing the contract, to
// simulate content created by a non-contract backdoor.
func plant(fs *FS, parentPath string, n *node) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cur := fs.root
	for _, seg := range fspath.Split(parentPath) {
		cur = cur.children[seg]
	}
	cur.children[n.name] = n
}

func TestNew(t *testing.T) {
	t.Parallel()

	fs := New()

	tree, err := fs.LoadDirectoryTree(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, tree.Name())
	assert.Empty(t, tree.Path())
	assert.Empty(t, tree.Children())
}

func TestFS_SaveFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		fs := New()

		require.NoError(t, fs.SaveFile(ctx, "notes.txt", "remember"))

		content, err := fs.LoadTextFile(ctx, "notes.txt")
		require.NoError(t, err)
		assert.Equal(t, "remember", content)
	})

	t.Run("CreatesAncestorDirectories", func(t *testing.T) {
		t.Parallel()
		fs := New()

		require.NoError(t, fs.SaveFile(ctx, "a/b.txt", "hi"))

		tree, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		a, ok := tree.Child("a").(*reactivefs.Directory)
		require.True(t, ok)
		b, ok := a.Child("b.txt").(*reactivefs.File)
		require.True(t, ok)
		assert.Equal(t, "hi", b.Content())
		assert.Equal(t, "a/b.txt", b.Path())
	})

	t.Run("EmitsAncestorEventsBeforeFileCreated", func(t *testing.T) {
		t.Parallel()
		fs := New()
		events := recordEvents(fs)

		require.NoError(t, fs.SaveFile(ctx, "x/y/z.txt", "deep"))

		assert.Equal(t, []fsevent.Event{
			fsevent.DirectoryCreatedEvent{Path: "x"},
			fsevent.DirectoryCreatedEvent{Path: "x/y"},
			fsevent.FileCreatedEvent{Path: "x/y/z.txt", Content: "deep"},
		}, *events)
	})

	t.Run("DifferentContentEmitsFileChanged", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "f.txt", "v1"))
		events := recordEvents(fs)

		require.NoError(t, fs.SaveFile(ctx, "f.txt", "v2"))

		assert.Equal(t, []fsevent.Event{
			fsevent.FileChangedEvent{Path: "f.txt", NewContent: "v2"},
		}, *events)
		content, err := fs.LoadTextFile(ctx, "f.txt")
		require.NoError(t, err)
		assert.Equal(t, "v2", content)
	})

	t.Run("IdenticalContentIsSilentNoOp", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "f.txt", "same"))
		events := recordEvents(fs)

		require.NoError(t, fs.SaveFile(ctx, "f.txt", "same"))

		assert.Empty(t, *events)
	})

	t.Run("RootPathFails", func(t *testing.T) {
		t.Parallel()
		fs := New()

		err := fs.SaveFile(ctx, "", "x")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))

		err = fs.SaveFile(ctx, "/", "x")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))
	})

	t.Run("IgnoredPathFails", func(t *testing.T) {
		t.Parallel()
		fs := New(WithIgnore(ignore.Prefixes("private")))

		err := fs.SaveFile(ctx, "private/diary.txt", "x")

		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))
	})

	t.Run("DirectoryAtPathFails", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.EnsureDirectory(ctx, "docs"))

		err := fs.SaveFile(ctx, "docs", "x")

		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})

	t.Run("FileAtAncestorFailsWithoutMutating", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "blocker", "file"))
		events := recordEvents(fs)

		err := fs.SaveFile(ctx, "blocker/deep/child.txt", "x")

		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
		assert.Empty(t, *events)
		tree, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		assert.Len(t, tree.Children(), 1, "failed save must not leave partial directories")
	})

	t.Run("NormalizesSeparators", func(t *testing.T) {
		t.Parallel()
		fs := New()

		require.NoError(t, fs.SaveFile(ctx, "/a//b.txt/", "hi"))

		content, err := fs.LoadTextFile(ctx, "a/b.txt")
		require.NoError(t, err)
		assert.Equal(t, "hi", content)
	})
}

func TestFS_DeleteFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("RemovesFileAndEmits", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "a/b.txt", "x"))
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteFile(ctx, "a/b.txt"))

		assert.Equal(t, []fsevent.Event{fsevent.FileDeletedEvent{Path: "a/b.txt"}}, *events)
		_, err := fs.LoadTextFile(ctx, "a/b.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})

	t.Run("MissingTargetIsSilentNoOp", func(t *testing.T) {
		t.Parallel()
		fs := New()
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteFile(ctx, "never/existed.txt"))

		assert.Empty(t, *events)
	})

	t.Run("IgnoredTargetIsSilentNoOp", func(t *testing.T) {
		t.Parallel()
		fs := New(WithIgnore(ignore.Prefixes("tmp")))
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteFile(ctx, "tmp/scratch"))

		assert.Empty(t, *events)
	})

	t.Run("DirectoryTargetFails", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.EnsureDirectory(ctx, "d"))

		err := fs.DeleteFile(ctx, "d")

		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})

	t.Run("RootFails", func(t *testing.T) {
		t.Parallel()
		fs := New()

		err := fs.DeleteFile(ctx, "")

		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))
	})
}

func TestFS_DeleteDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// seedTree builds dir/{sub/leaf.txt, top.txt}.
	seedTree := func(t *testing.T, fs *FS) {
		require.NoError(t, fs.SaveFile(ctx, "dir/sub/leaf.txt", "l"))
		require.NoError(t, fs.SaveFile(ctx, "dir/top.txt", "t"))
	}

	t.Run("NonRecursiveNonEmptyFails", func(t *testing.T) {
		t.Parallel()
		fs := New()
		seedTree(t, fs)

		err := fs.DeleteDirectory(ctx, "dir", false)

		assert.True(t, fserr.IsKind(err, fserr.KindNotEmpty))
		_, statErr := fs.Stat(ctx, "dir/top.txt")
		assert.NoError(t, statErr, "failed delete must not remove anything")
	})

	t.Run("NonRecursiveEmptySucceeds", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.EnsureDirectory(ctx, "empty"))
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteDirectory(ctx, "empty", false))

		assert.Equal(t, []fsevent.Event{fsevent.DirectoryDeletedEvent{Path: "empty"}}, *events)
	})

	t.Run("RecursiveRemovesSubtreePreOrder", func(t *testing.T) {
		t.Parallel()
		fs := New()
		seedTree(t, fs)
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteDirectory(ctx, "dir", true))

		assert.Equal(t, []fsevent.Event{
			fsevent.DirectoryDeletedEvent{Path: "dir"},
			fsevent.DirectoryDeletedEvent{Path: "dir/sub"},
			fsevent.FileDeletedEvent{Path: "dir/sub/leaf.txt"},
			fsevent.FileDeletedEvent{Path: "dir/top.txt"},
		}, *events)

		tree, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, tree.Children())
	})

	t.Run("MissingTargetIsSilentNoOp", func(t *testing.T) {
		t.Parallel()
		fs := New()
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteDirectory(ctx, "ghost", true))

		assert.Empty(t, *events)
	})

	t.Run("IgnoredTargetIsSilentNoOp", func(t *testing.T) {
		t.Parallel()
		fs := New(WithIgnore(ignore.Prefixes("cache")))
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteDirectory(ctx, "cache", true))

		assert.Empty(t, *events)
	})

	t.Run("FileTargetFails", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "f.txt", "x"))

		err := fs.DeleteDirectory(ctx, "f.txt", false)

		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})

	t.Run("RootFails", func(t *testing.T) {
		t.Parallel()
		fs := New()

		err := fs.DeleteDirectory(ctx, "/", true)

		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))
	})

	t.Run("IgnoredDescendantsVanishSilently", func(t *testing.T) {
		t.Parallel()
		fs := New(WithIgnore(ignore.Prefixes("dir/secret")))
		require.NoError(t, fs.SaveFile(ctx, "dir/visible.txt", "v"))
		plant(fs, "dir", &node{name: "secret", dir: true, children: map[string]*node{
			"hidden.txt": {name: "hidden.txt", content: "h"},
		}})
		events := recordEvents(fs)

		require.NoError(t, fs.DeleteDirectory(ctx, "dir", true))

		assert.Equal(t, []fsevent.Event{
			fsevent.DirectoryDeletedEvent{Path: "dir"},
			fsevent.FileDeletedEvent{Path: "dir/visible.txt"},
		}, *events)
	})
}

func TestFS_EnsureDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("EmitsExactlyOncePerNewSegment", func(t *testing.T) {
		t.Parallel()
		fs := New()
		events := recordEvents(fs)

		require.NoError(t, fs.EnsureDirectory(ctx, "x"))
		assert.Equal(t, []fsevent.Event{fsevent.DirectoryCreatedEvent{Path: "x"}}, *events)

		require.NoError(t, fs.EnsureDirectory(ctx, "x"))
		assert.Len(t, *events, 1, "re-ensuring an existing directory emits nothing")
	})

	t.Run("CreatesMissingSegmentsOnly", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.EnsureDirectory(ctx, "a/b"))
		events := recordEvents(fs)

		require.NoError(t, fs.EnsureDirectory(ctx, "a/b/c/d"))

		assert.Equal(t, []fsevent.Event{
			fsevent.DirectoryCreatedEvent{Path: "a/b/c"},
			fsevent.DirectoryCreatedEvent{Path: "a/b/c/d"},
		}, *events)
	})

	t.Run("RootIsAlwaysPresent", func(t *testing.T) {
		t.Parallel()
		fs := New()
		events := recordEvents(fs)

		require.NoError(t, fs.EnsureDirectory(ctx, ""))

		assert.Empty(t, *events)
	})

	t.Run("FileAtSegmentFails", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "a/f.txt", "x"))

		err := fs.EnsureDirectory(ctx, "a/f.txt/sub")

		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})

	t.Run("IgnoredPathFails", func(t *testing.T) {
		t.Parallel()
		fs := New(WithIgnore(ignore.Prefixes("off-limits")))

		err := fs.EnsureDirectory(ctx, "off-limits/sub")

		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))
	})
}

func TestFS_LoadTextFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs := New(WithIgnore(ignore.Prefixes("hidden")))
	require.NoError(t, fs.SaveFile(ctx, "empty.txt", ""))
	require.NoError(t, fs.EnsureDirectory(ctx, "d"))

	t.Run("EmptyContent", func(t *testing.T) {
		t.Parallel()
		content, err := fs.LoadTextFile(ctx, "empty.txt")
		require.NoError(t, err)
		assert.Empty(t, content)
	})

	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		_, err := fs.LoadTextFile(ctx, "nope.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})

	t.Run("Directory", func(t *testing.T) {
		t.Parallel()
		_, err := fs.LoadTextFile(ctx, "d")
		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})

	t.Run("Ignored", func(t *testing.T) {
		t.Parallel()
		_, err := fs.LoadTextFile(ctx, "hidden/f.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))
	})
}

func TestFS_LoadDirectoryTree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("SnapshotIsDetached", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "a/b.txt", "v1"))

		before, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		require.NoError(t, fs.SaveFile(ctx, "a/c.txt", "v2"))

		a, ok := before.Child("a").(*reactivefs.Directory)
		require.True(t, ok)
		assert.Len(t, a.Children(), 1, "snapshot must not track later mutations")
	})

	t.Run("SubtreeRoot", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "a/b/c.txt", "x"))

		tree, err := fs.LoadDirectoryTree(ctx, "a/b")
		require.NoError(t, err)
		assert.Equal(t, "b", tree.Name())
		assert.Equal(t, "a/b", tree.Path())
		require.Len(t, tree.Children(), 1)
		assert.Equal(t, "a/b/c.txt", tree.Children()[0].Path())
	})

	t.Run("ChildrenSortedByName", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "z.txt", "z"))
		require.NoError(t, fs.SaveFile(ctx, "a.txt", "a"))
		require.NoError(t, fs.EnsureDirectory(ctx, "m"))

		tree, err := fs.LoadDirectoryTree(ctx, "")
		require.NoError(t, err)
		names := make([]string, 0, len(tree.Children()))
		for _, c := range tree.Children() {
			names = append(names, c.Name())
		}
		assert.Equal(t, []string{"a.txt", "m", "z.txt"}, names)
	})

	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		fs := New()
		_, err := fs.LoadDirectoryTree(ctx, "ghost")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})

	t.Run("FileTarget", func(t *testing.T) {
		t.Parallel()
		fs := New()
		require.NoError(t, fs.SaveFile(ctx, "f.txt", "x"))
		_, err := fs.LoadDirectoryTree(ctx, "f.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})
}

func TestFS_LoadDirectoryChildren(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs := New()
	require.NoError(t, fs.SaveFile(ctx, "p/file.txt", "f"))
	require.NoError(t, fs.EnsureDirectory(ctx, "p/sub/deep"))

	children, err := fs.LoadDirectoryChildren(ctx, "p")
	require.NoError(t, err)
	require.Len(t, children, 2)

	file, ok := children[0].(*reactivefs.File)
	require.True(t, ok)
	assert.Equal(t, "p/file.txt", file.Path())

	// Subdirectories come back shallow: no grandchildren are materialized.
	sub, ok := children[1].(*reactivefs.ShallowDirectory)
	require.True(t, ok)
	assert.Equal(t, "p/sub", sub.Path())
}

func TestFS_Stat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs := New(WithIgnore(ignore.Prefixes("hidden")))
	require.NoError(t, fs.SaveFile(ctx, "f.txt", "x"))
	require.NoError(t, fs.EnsureDirectory(ctx, "d"))

	t.Run("File", func(t *testing.T) {
		t.Parallel()
		stats, err := fs.Stat(ctx, "f.txt")
		require.NoError(t, err)
		assert.Equal(t, reactivefs.FileType, stats.Type)
	})

	t.Run("Directory", func(t *testing.T) {
		t.Parallel()
		stats, err := fs.Stat(ctx, "d")
		require.NoError(t, err)
		assert.Equal(t, reactivefs.DirType, stats.Type)
	})

	t.Run("Root", func(t *testing.T) {
		t.Parallel()
		stats, err := fs.Stat(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, reactivefs.DirType, stats.Type)
	})

	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		_, err := fs.Stat(ctx, "ghost")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})

	t.Run("IgnoredStatsAsMissing", func(t *testing.T) {
		t.Parallel()
		_, err := fs.Stat(ctx, "hidden/f.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
	})
}

func TestFS_IgnoreInvisibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Nodes planted behind the contract's back under an ignored path must
	// stay invisible to listings even though they structurally exist.
	fs := New(WithIgnore(ignore.Prefixes("secret")))
	require.NoError(t, fs.SaveFile(ctx, "visible.txt", "v"))
	plant(fs, "", &node{name: "secret", dir: true, children: map[string]*node{
		"token": {name: "token", content: "s3cr3t"},
	}})

	tree, err := fs.LoadDirectoryTree(ctx, "")
	require.NoError(t, err)
	require.Len(t, tree.Children(), 1)
	assert.Equal(t, "visible.txt", tree.Children()[0].Name())

	children, err := fs.LoadDirectoryChildren(ctx, "")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "visible.txt", children[0].Name())

	_, err = fs.LoadTextFile(ctx, "secret/token")
	assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))

	_, err = fs.Stat(ctx, "secret/token")
	assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
}

func TestFS_ConcurrentSaves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs := New()
	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- fs.SaveFile(ctx, fmt.Sprintf("dir/f%d.txt", i), "x")
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	children, err := fs.LoadDirectoryChildren(ctx, "dir")
	require.NoError(t, err)
	assert.Len(t, children, 20)
}
