package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
	"github.com/wix/reactive-fs/internal/util"
)

// Connection states. There is no reconnect: a client that leaves ready
// never returns to it, and a fresh client must be dialed instead.
const (
	stateConnecting int32 = iota
	stateReady
	stateClosed
	stateErrored
)

// ClientOptions configures Dial.
type ClientOptions struct {
	// URL is the websocket endpoint, e.g. "ws://127.0.0.1:7450/ws".
	URL string
	// Realm must match the server's realm. Empty means DefaultRealm.
	Realm string
	// HandshakeTimeout bounds dialing plus the hello/welcome exchange.
	// Zero means 10 seconds.
	HandshakeTimeout time.Duration
}

// Client implements the reactivefs contract against a remote Server. Calls
// travel as correlated request/result frames; events published by the
// server are re-emitted verbatim on the client's own emitter, so a local
// subscriber observes the same sequence a subscriber on the server's
// backing store would.
type Client struct {
	conn      *websocket.Conn
	realm     string
	logger    zerolog.Logger
	events    *fsevent.Emitter
	pending   *xsync.MapOf[string, chan *Frame]
	sendCh    chan *Frame
	done      chan struct{}
	state     atomic.Int32
	reason    atomic.Pointer[fserr.Error]
	closeOnce sync.Once
}

var _ reactivefs.FileSystem = (*Client)(nil)

// Dial connects, performs the realm handshake and subscribes to the
// server's event stream before returning, so a returned client is always
// attached and ready. Any failure along the way yields a ConnectionError
// and no client.
func Dial(ctx context.Context, opts ClientOptions) (*Client, error) {
	realm := opts.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = helloTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fserr.Wrap(err, fserr.KindConnection, fmt.Sprintf("dial %s", opts.URL))
	}

	c := &Client{
		conn:    conn,
		realm:   realm,
		logger:  util.GetLogger("bridge.Client"),
		events:  fsevent.NewEmitter(),
		pending: xsync.NewMapOf[string, chan *Frame](),
		sendCh:  make(chan *Frame, sendBuffer),
		done:    make(chan struct{}),
	}
	if err := c.handshake(timeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.state.Store(stateReady)
	go c.readLoop()
	go c.writeLoop()
	c.logger.Info().Str("url", opts.URL).Str("realm", realm).Msg("Connected")
	return c, nil
}

// Realm returns the realm presented at handshake.
func (c *Client) Realm() string { return c.realm }

// Events returns the client's private emitter carrying the server's
// republished events.
func (c *Client) Events() *fsevent.Emitter { return c.events }

// Close ends the connection politely. Pending and future calls fail with
// a ConnectionError.
func (c *Client) Close() error {
	if !c.state.CompareAndSwap(stateReady, stateClosed) {
		return nil
	}
	c.logger.Info().Msg("Closing connection")
	deadline := time.Now().Add(writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.teardown()
	return nil
}

func (c *Client) handshake(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(Frame{Type: FrameHello, Realm: c.realm}); err != nil {
		return fserr.Wrap(err, fserr.KindConnection, "send hello")
	}

	_ = c.conn.SetReadDeadline(deadline)
	var welcome Frame
	if err := c.conn.ReadJSON(&welcome); err != nil {
		return fserr.Wrap(err, fserr.KindConnection, "await welcome")
	}
	if welcome.Type != FrameWelcome {
		return fserr.Newf(fserr.KindConnection, "expected welcome frame, got %q", welcome.Type)
	}
	if welcome.Error != nil {
		return welcome.Error
	}
	return nil
}

// fail records why the connection died and wakes every waiter. A teardown
// initiated by Close keeps the closed state instead.
func (c *Client) fail(reason *fserr.Error) {
	if c.state.CompareAndSwap(stateReady, stateErrored) {
		c.reason.Store(reason)
		c.logger.Warn().Err(reason).Msg("Connection errored")
	}
	c.teardown()
}

func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// connError describes the connection's terminal state to a caller.
func (c *Client) connError() *fserr.Error {
	switch c.state.Load() {
	case stateClosed:
		return fserr.New(fserr.KindConnection, "connection closed")
	case stateErrored:
		if reason := c.reason.Load(); reason != nil {
			return reason
		}
		return fserr.New(fserr.KindConnection, "connection lost")
	default:
		return fserr.New(fserr.KindConnection, "connection is not ready")
	}
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.fail(fserr.Wrap(err, fserr.KindConnection, "connection lost"))
			return
		}
		switch frame.Type {
		case FrameResult:
			if ch, ok := c.pending.LoadAndDelete(frame.ID); ok {
				ch <- &frame
			} else {
				c.logger.Debug().Str("id", frame.ID).Msg("Result for unknown call")
			}
		case FrameEvent:
			ev, err := fsevent.Unmarshal(frame.Event, frame.Data)
			if err != nil {
				c.fail(fserr.Wrap(err, fserr.KindConnection, "malformed event frame"))
				return
			}
			// Re-emitted synchronously so delivery order matches the
			// server's publish order.
			c.events.Emit(ev)
		default:
			c.logger.Warn().Str("type", frame.Type).Msg("Unexpected frame type")
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(fserr.Wrap(err, fserr.KindConnection, "connection lost"))
				return
			}
		case frame := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.fail(fserr.Wrap(err, fserr.KindConnection, "connection lost"))
				return
			}
		}
	}
}

// call performs one correlated round trip. Remote errors come back as
// reconstructed fserr values; transport loss surfaces as ConnectionError.
func (c *Client) call(ctx context.Context, proc string, args *CallArgs) (json.RawMessage, error) {
	if c.state.Load() != stateReady {
		return nil, c.connError()
	}

	id := uuid.NewString()
	ch := make(chan *Frame, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	select {
	case c.sendCh <- &Frame{Type: FrameCall, ID: id, Proc: proc, Args: args}:
	case <-c.done:
		return nil, c.connError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case reply := <-ch:
		if reply.Error != nil {
			return nil, reply.Error
		}
		return reply.Result, nil
	case <-c.done:
		return nil, c.connError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) SaveFile(ctx context.Context, path, content string) error {
	_, err := c.call(ctx, ProcSaveFile, &CallArgs{Path: path, Content: content})
	return err
}

func (c *Client) DeleteFile(ctx context.Context, path string) error {
	_, err := c.call(ctx, ProcDeleteFile, &CallArgs{Path: path})
	return err
}

func (c *Client) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	_, err := c.call(ctx, ProcDeleteDirectory, &CallArgs{Path: path, Recursive: recursive})
	return err
}

func (c *Client) EnsureDirectory(ctx context.Context, path string) error {
	_, err := c.call(ctx, ProcEnsureDirectory, &CallArgs{Path: path})
	return err
}

func (c *Client) LoadTextFile(ctx context.Context, path string) (string, error) {
	result, err := c.call(ctx, ProcLoadTextFile, &CallArgs{Path: path})
	if err != nil {
		return "", err
	}
	var payload TextResult
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fserr.Wrap(err, fserr.KindConnection, "decode loadTextFile result")
	}
	return payload.Content, nil
}

func (c *Client) LoadDirectoryTree(ctx context.Context, path string) (*reactivefs.Directory, error) {
	result, err := c.call(ctx, ProcLoadDirectoryTree, &CallArgs{Path: path})
	if err != nil {
		return nil, err
	}
	var payload NodePayload
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fserr.Wrap(err, fserr.KindConnection, "decode loadDirectoryTree result")
	}
	return payload.DecodeTree()
}

func (c *Client) LoadDirectoryChildren(ctx context.Context, path string) ([]reactivefs.Node, error) {
	result, err := c.call(ctx, ProcLoadDirectoryChildren, &CallArgs{Path: path})
	if err != nil {
		return nil, err
	}
	var payload ChildrenResult
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fserr.Wrap(err, fserr.KindConnection, "decode loadDirectoryChildren result")
	}
	children := make([]reactivefs.Node, 0, len(payload.Children))
	for _, p := range payload.Children {
		child, err := p.DecodeChild()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func (c *Client) Stat(ctx context.Context, path string) (reactivefs.Stats, error) {
	result, err := c.call(ctx, ProcStat, &CallArgs{Path: path})
	if err != nil {
		return reactivefs.Stats{}, err
	}
	var stats reactivefs.Stats
	if err := json.Unmarshal(result, &stats); err != nil {
		return reactivefs.Stats{}, fserr.Wrap(err, fserr.KindConnection, "decode stat result")
	}
	return stats, nil
}
