package bridge_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/bridge"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
	"github.com/wix/reactive-fs/memfs"
)

// startServer exposes fs over a test HTTP server and returns the ws URL.
func startServer(t *testing.T, fs reactivefs.FileSystem, realm string) (string, *bridge.Server) {
	t.Helper()
	srv := bridge.NewServer(fs, bridge.Options{Realm: realm})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", srv
}

// dialOK connects a client and wires its teardown.
func dialOK(t *testing.T, url, realm string) *bridge.Client {
	t.Helper()
	client, err := bridge.Dial(context.Background(), bridge.ClientOptions{URL: url, Realm: realm})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitEvent(t *testing.T, ch <-chan fsevent.Event) fsevent.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBridge_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url, _ := startServer(t, memfs.New(), "room")
	client := dialOK(t, url, "room")

	require.NoError(t, client.SaveFile(ctx, "a/b.txt", "hi"))

	content, err := client.LoadTextFile(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", content)

	tree, err := client.LoadDirectoryTree(ctx, "")
	require.NoError(t, err)
	a, ok := tree.Child("a").(*reactivefs.Directory)
	require.True(t, ok)
	b, ok := a.Child("b.txt").(*reactivefs.File)
	require.True(t, ok)
	assert.Equal(t, "hi", b.Content())

	children, err := client.LoadDirectoryChildren(ctx, "a")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "a/b.txt", children[0].Path())

	stats, err := client.Stat(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, reactivefs.DirType, stats.Type)

	require.NoError(t, client.DeleteFile(ctx, "a/b.txt"))
	require.NoError(t, client.DeleteDirectory(ctx, "a", false))

	tree, err = client.LoadDirectoryTree(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, tree.Children())
}

func TestBridge_RemoteErrorsKeepKindAndMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url, _ := startServer(t, memfs.New(), "room")
	client := dialOK(t, url, "room")

	t.Run("NotFound", func(t *testing.T) {
		_, err := client.LoadTextFile(ctx, "ghost.txt")
		assert.True(t, fserr.IsKind(err, fserr.KindNotFound))
		assert.Contains(t, err.Error(), "ghost.txt")
	})

	t.Run("IllegalPath", func(t *testing.T) {
		err := client.SaveFile(ctx, "", "x")
		assert.True(t, fserr.IsKind(err, fserr.KindIllegalPath))
	})

	t.Run("NotEmpty", func(t *testing.T) {
		require.NoError(t, client.SaveFile(ctx, "full/f.txt", "x"))
		err := client.DeleteDirectory(ctx, "full", false)
		assert.True(t, fserr.IsKind(err, fserr.KindNotEmpty))
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		require.NoError(t, client.EnsureDirectory(ctx, "somedir"))
		_, err := client.LoadTextFile(ctx, "somedir")
		assert.True(t, fserr.IsKind(err, fserr.KindTypeMismatch))
	})
}

func TestBridge_EventsArriveBeforeCallSettles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url, _ := startServer(t, memfs.New(), "room")
	client := dialOK(t, url, "room")

	// The reader goroutine re-emits each event before it delivers the
	// result that settles the call, so once SaveFile returns the recorder
	// is complete and synchronized via the result channel.
	var events []fsevent.Event
	client.Events().OnAny(func(ev fsevent.Event) { events = append(events, ev) })

	require.NoError(t, client.SaveFile(ctx, "x/y.txt", "deep"))

	assert.Equal(t, []fsevent.Event{
		fsevent.DirectoryCreatedEvent{Path: "x"},
		fsevent.FileCreatedEvent{Path: "x/y.txt", Content: "deep"},
	}, events)
}

func TestBridge_EventsFanOutToAllClients(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url, _ := startServer(t, memfs.New(), "room")
	writer := dialOK(t, url, "room")
	watcher := dialOK(t, url, "room")

	seen := make(chan fsevent.Event, 4)
	watcher.Events().On(fsevent.FileCreated, func(ev fsevent.Event) { seen <- ev })

	require.NoError(t, writer.SaveFile(ctx, "shared.txt", "fan out"))

	ev := waitEvent(t, seen)
	assert.Equal(t, fsevent.FileCreatedEvent{Path: "shared.txt", Content: "fan out"}, ev)
}

func TestBridge_ServerSideMutationsReachClients(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memfs.New()
	url, _ := startServer(t, store, "room")
	client := dialOK(t, url, "room")

	seen := make(chan fsevent.Event, 4)
	client.Events().On(fsevent.FileCreated, func(ev fsevent.Event) { seen <- ev })

	// Mutations applied directly on the server's backing store publish to
	// remote subscribers all the same.
	require.NoError(t, store.SaveFile(ctx, "local.txt", "server side"))

	ev := waitEvent(t, seen)
	assert.Equal(t, fsevent.FileCreatedEvent{Path: "local.txt", Content: "server side"}, ev)
}

func TestBridge_RealmMismatchRejectsDial(t *testing.T) {
	t.Parallel()

	url, _ := startServer(t, memfs.New(), "alpha")

	_, err := bridge.Dial(context.Background(), bridge.ClientOptions{URL: url, Realm: "beta"})

	require.Error(t, err)
	assert.True(t, fserr.IsKind(err, fserr.KindConnection))
	assert.Contains(t, err.Error(), "realm mismatch")
}

func TestBridge_DialFailsWithoutServer(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ts.Close()

	_, err := bridge.Dial(context.Background(), bridge.ClientOptions{
		URL:              url,
		Realm:            "room",
		HandshakeTimeout: time.Second,
	})

	require.Error(t, err)
	assert.True(t, fserr.IsKind(err, fserr.KindConnection))
}

func TestBridge_ServerCloseErrorsClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url, srv := startServer(t, memfs.New(), "room")
	client := dialOK(t, url, "room")
	require.NoError(t, client.SaveFile(ctx, "before.txt", "x"))

	srv.Close()

	// No reconnect: once the transport drops, every call fails with a
	// ConnectionError until a fresh client is dialed.
	err := client.SaveFile(ctx, "after.txt", "x")
	require.Error(t, err)
	assert.True(t, fserr.IsKind(err, fserr.KindConnection))

	err = client.SaveFile(ctx, "after2.txt", "x")
	require.Error(t, err)
	assert.True(t, fserr.IsKind(err, fserr.KindConnection))
}

func TestBridge_ClientCloseFailsFurtherCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url, _ := startServer(t, memfs.New(), "room")
	client := dialOK(t, url, "room")

	require.NoError(t, client.Close())

	err := client.EnsureDirectory(ctx, "p")
	require.Error(t, err)
	assert.True(t, fserr.IsKind(err, fserr.KindConnection))
	assert.Contains(t, err.Error(), "connection closed")
}

func TestBridge_ConcurrentCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url, _ := startServer(t, memfs.New(), "room")
	client := dialOK(t, url, "room")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.SaveFile(ctx, fmt.Sprintf("dir/f%d.txt", i), "x")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	children, err := client.LoadDirectoryChildren(ctx, "dir")
	require.NoError(t, err)
	assert.Len(t, children, 20)
}

// rawConn dials the protocol by hand for frame-level tests.
func rawConn(t *testing.T, url, realm string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(bridge.Frame{Type: bridge.FrameHello, Realm: realm}))
	var welcome bridge.Frame
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, bridge.FrameWelcome, welcome.Type)
	require.Nil(t, welcome.Error)
	return conn
}

func TestBridge_ServerToleratesStrayFrames(t *testing.T) {
	t.Parallel()

	url, _ := startServer(t, memfs.New(), "room")
	conn := rawConn(t, url, "room")

	// A frame of unknown type is logged and skipped, not fatal.
	require.NoError(t, conn.WriteJSON(bridge.Frame{Type: "bogus"}))

	require.NoError(t, conn.WriteJSON(bridge.Frame{
		Type: bridge.FrameCall,
		ID:   "1",
		Proc: bridge.ProcEnsureDirectory,
		Args: &bridge.CallArgs{Path: "still/alive"},
	}))

	for {
		var reply bridge.Frame
		require.NoError(t, conn.ReadJSON(&reply))
		if reply.Type != bridge.FrameResult {
			continue // event frames from the ensure may arrive first
		}
		assert.Equal(t, "1", reply.ID)
		assert.Nil(t, reply.Error)
		return
	}
}

func TestBridge_UnknownProcedureFails(t *testing.T) {
	t.Parallel()

	url, _ := startServer(t, memfs.New(), "room")
	conn := rawConn(t, url, "room")

	require.NoError(t, conn.WriteJSON(bridge.Frame{
		Type: bridge.FrameCall,
		ID:   "42",
		Proc: "chmod",
		Args: &bridge.CallArgs{Path: "x"},
	}))

	var reply bridge.Frame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, bridge.FrameResult, reply.Type)
	assert.Equal(t, "42", reply.ID)
	require.NotNil(t, reply.Error)
	assert.Equal(t, fserr.KindUnsupported, reply.Error.Kind)
}
