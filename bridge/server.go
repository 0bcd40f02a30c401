package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
	"github.com/wix/reactive-fs/internal/util"
)

// DefaultRealm scopes instances that never set an explicit realm.
const DefaultRealm = "default"

const (
	// writeTimeout bounds every websocket write.
	writeTimeout = 5 * time.Second
	// pingInterval is how often each side pings its peer.
	pingInterval = 30 * time.Second
	// pongTimeout is the read deadline refreshed by peer liveness.
	pongTimeout = 60 * time.Second
	// helloTimeout bounds the server-side handshake.
	helloTimeout = 10 * time.Second
	// maxFrameBytes caps one frame; file content rides inside frames.
	maxFrameBytes = 16 << 20
	// sendBuffer is the per-connection outbound queue. The queue is FIFO
	// so events enqueued during a mutation always precede its result.
	sendBuffer = 256
)

// Options configures a Server.
type Options struct {
	// Realm names the filesystem instance this server publishes. Clients
	// must present the same realm at handshake. Empty means DefaultRealm.
	Realm string
}

// Server exposes one underlying implementation over websocket transport.
// Every connected client can invoke the contract operations and receives
// every event the underlying implementation emits, in emission order.
type Server struct {
	fs       reactivefs.FileSystem
	realm    string
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	conns      *xsync.MapOf[uint64, *serverConn]
	lastConnID atomic.Uint64
	closed     atomic.Bool
	off        func()
}

// NewServer wraps fs. The server immediately subscribes to fs's events so
// no emission between construction and the first connection is lost to a
// race; Close releases the subscription.
func NewServer(fs reactivefs.FileSystem, opts Options) *Server {
	realm := opts.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	s := &Server{
		fs:     fs,
		realm:  realm,
		logger: util.GetLogger("bridge.Server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: xsync.NewMapOf[uint64, *serverConn](),
	}
	s.off = fs.Events().OnAny(s.broadcast)
	return s
}

// Realm returns the realm this server serves.
func (s *Server) Realm() string { return s.realm }

// Handler returns the HTTP surface: GET /ws upgrades to the bridge
// protocol and GET /healthz reports liveness.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)
	return r
}

// Close detaches the server from its filesystem and drops every client
// connection. In-flight calls settle or die with their connections; the
// underlying filesystem itself is left untouched.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.off()
	s.conns.Range(func(_ uint64, c *serverConn) bool {
		c.close()
		return true
	})
	s.logger.Info().Msg("Server closed")
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","realm":%q}`, s.realm)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Upgrade failed")
		return
	}

	id := s.lastConnID.Add(1)
	logger := s.logger.With().Uint64("conn", id).Logger()

	if err := s.handshake(conn); err != nil {
		logger.Warn().Err(err).Msg("Handshake rejected")
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &serverConn{
		srv:    s,
		conn:   conn,
		logger: logger,
		cancel: cancel,
		sendCh: make(chan *Frame, sendBuffer),
		done:   make(chan struct{}),
	}

	s.conns.Store(id, c)
	logger.Info().Str("realm", s.realm).Msg("Client attached")

	var g errgroup.Group
	g.Go(c.writeLoop)
	g.Go(func() error { return c.readLoop(ctx) })
	_ = g.Wait()

	s.conns.Delete(id)
	c.close()
	logger.Info().Msg("Client detached")
}

// handshake reads the client's hello and answers with a welcome. A realm
// mismatch is answered with an encoded error so the client can report why
// it was turned away.
func (s *Server) handshake(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello Frame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != FrameHello {
		return fmt.Errorf("expected hello frame, got %q", hello.Type)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if hello.Realm != s.realm {
		reject := fserr.Newf(fserr.KindConnection, "realm mismatch: server serves %q", s.realm)
		_ = conn.WriteJSON(Frame{Type: FrameWelcome, Error: reject})
		return reject
	}
	if err := conn.WriteJSON(Frame{Type: FrameWelcome, Realm: s.realm}); err != nil {
		return fmt.Errorf("write welcome: %w", err)
	}
	return nil
}

// broadcast republishes one event, unmodified, to every attached client.
// Enqueue order matches emission order, and because each connection's
// queue is FIFO, a mutation's events always reach the calling client
// before that call's result.
func (s *Server) broadcast(ev fsevent.Event) {
	name, data, err := fsevent.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Str("event", ev.EventName()).Msg("Failed to encode event")
		return
	}
	frame := &Frame{Type: FrameEvent, Event: name, Data: data, TS: time.Now().UnixMilli()}
	s.conns.Range(func(_ uint64, c *serverConn) bool {
		c.send(frame)
		return true
	})
}

// invoke dispatches one call to the underlying implementation and shapes
// the result frame. Contract errors travel encoded, preserving kind and
// message for client-side reconstruction.
func (s *Server) invoke(ctx context.Context, call *Frame) *Frame {
	args := call.Args
	if args == nil {
		args = &CallArgs{}
	}

	var (
		result any
		err    error
	)
	switch call.Proc {
	case ProcSaveFile:
		err = s.fs.SaveFile(ctx, args.Path, args.Content)
	case ProcDeleteFile:
		err = s.fs.DeleteFile(ctx, args.Path)
	case ProcDeleteDirectory:
		err = s.fs.DeleteDirectory(ctx, args.Path, args.Recursive)
	case ProcEnsureDirectory:
		err = s.fs.EnsureDirectory(ctx, args.Path)
	case ProcLoadTextFile:
		var content string
		if content, err = s.fs.LoadTextFile(ctx, args.Path); err == nil {
			result = TextResult{Content: content}
		}
	case ProcLoadDirectoryTree:
		var tree *reactivefs.Directory
		if tree, err = s.fs.LoadDirectoryTree(ctx, args.Path); err == nil {
			result = EncodeNode(tree)
		}
	case ProcLoadDirectoryChildren:
		var children []reactivefs.Node
		if children, err = s.fs.LoadDirectoryChildren(ctx, args.Path); err == nil {
			payloads := make([]*NodePayload, 0, len(children))
			for _, child := range children {
				payloads = append(payloads, EncodeNode(child))
			}
			result = ChildrenResult{Children: payloads}
		}
	case ProcStat:
		var stats reactivefs.Stats
		if stats, err = s.fs.Stat(ctx, args.Path); err == nil {
			result = stats
		}
	default:
		err = fserr.Newf(fserr.KindUnsupported, "unknown procedure %q", call.Proc)
	}

	reply := &Frame{Type: FrameResult, ID: call.ID}
	if err != nil {
		s.logger.Debug().Str("proc", call.Proc).Str("path", args.Path).Err(err).Msg("Call failed")
		reply.Error = fserr.Encode(err)
		return reply
	}
	if result != nil {
		data, mErr := json.Marshal(result)
		if mErr != nil {
			s.logger.Error().Err(mErr).Str("proc", call.Proc).Msg("Failed to encode result")
			reply.Error = fserr.Encode(mErr)
			return reply
		}
		reply.Result = data
	}
	return reply
}

// serverConn is one attached client. A single writer goroutine drains
// sendCh so all frame writes are serialized.
type serverConn struct {
	srv       *Server
	conn      *websocket.Conn
	logger    zerolog.Logger
	cancel    context.CancelFunc
	sendCh    chan *Frame
	done      chan struct{}
	closeOnce sync.Once
}

// send enqueues a frame for the writer. A peer that stops draining its
// queue would force either dropped frames or unbounded buffering, both of
// which break the ordered-delivery contract, so the connection is dropped
// instead.
func (c *serverConn) send(frame *Frame) {
	select {
	case c.sendCh <- frame:
	case <-c.done:
	default:
		c.logger.Warn().Msg("Send queue full, dropping connection")
		c.close()
	}
}

func (c *serverConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *serverConn) writeLoop() error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return nil
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return err
			}
		case frame := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.close()
				return err
			}
		}
	}
}

func (c *serverConn) readLoop(ctx context.Context) error {
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if frame.Type != FrameCall {
			c.logger.Warn().Str("type", frame.Type).Msg("Unexpected frame type")
			continue
		}
		if frame.ID == "" {
			c.logger.Warn().Str("proc", frame.Proc).Msg("Call frame missing id")
			continue
		}
		// Per-call goroutine: a slow operation must not stall the read
		// loop, and the FIFO queue still orders its events before its
		// result.
		go func(call Frame) {
			c.send(c.srv.invoke(ctx, &call))
		}(frame)
	}
}
