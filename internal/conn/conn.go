// Package conn is the websocket transport that feeds a frame stream.
//
// A Conn dials the feed, delivers every binary message to the message handler
// and reports each lost connection to the close handler, in order, from a
// single goroutine. Text messages are ignored. When reconnect is enabled a
// lost connection is redialed with exponential backoff.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/frameview/internal/logging"
)

var (
	ErrClosed       = errors.New("conn: closed")
	ErrNotConnected = errors.New("conn: not connected")
	ErrMaxRetries   = errors.New("conn: max retries exceeded")
)

const writeWait = 10 * time.Second

type Options struct {
	URL              string
	ReconnectEnabled bool
	Reconnect        ReconnectConfig
	// ReadLimit caps the size of one message. Zero means no limit.
	ReadLimit int64
	// PongWait is the read deadline, extended by every ping from the feed.
	// Zero disables the deadline.
	PongWait time.Duration
	Header   http.Header
	Dialer   *websocket.Dialer
}

type Conn struct {
	opts   Options
	dialer *websocket.Dialer

	mu        sync.Mutex
	ws        *websocket.Conn
	onMessage func([]byte)
	onClose   func()
	cancel    context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup

	running    atomic.Bool
	connected  atomic.Bool
	loading    atomic.Bool
	reconnect  atomic.Bool
	retryReq   atomic.Bool
	reconnects atomic.Uint64
}

func New(opts Options) *Conn {
	d := opts.Dialer
	if d == nil {
		d = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	c := &Conn{opts: opts, dialer: d}
	c.reconnect.Store(opts.ReconnectEnabled)
	return c
}

// OnMessage sets the handler for binary messages. It replaces any previous one.
func (c *Conn) OnMessage(fn func(data []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnClose sets the handler called after each connection is lost.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// Init dials the feed and starts reading. ctx bounds the whole lifetime of
// the connection, reconnects included. Init on a running Conn is a no-op.
func (c *Conn) Init(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	ws, err := c.dial(runCtx)
	if err != nil {
		cancel()
		c.running.Store(false)
		return err
	}
	c.attach(ws)

	c.wg.Add(1)
	go c.run(runCtx, ws)
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	c.loading.Store(true)
	defer c.loading.Store(false)

	cfg := c.opts.Reconnect
	attempt := 0
	for {
		ws, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err == nil {
			logging.Infof("conn: connected to %s", c.opts.URL)
			return ws, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		attempt++
		if attempt > cfg.MaxRetries {
			return nil, fmt.Errorf("%w (%d attempts): %v", ErrMaxRetries, attempt, err)
		}

		delay := calculateBackoff(attempt, cfg)
		logging.Warnf("conn: dial %s failed (attempt %d/%d), retrying in %v: %v",
			c.opts.URL, attempt, cfg.MaxRetries, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Conn) attach(ws *websocket.Conn) {
	if c.opts.ReadLimit > 0 {
		ws.SetReadLimit(c.opts.ReadLimit)
	}
	if wait := c.opts.PongWait; wait > 0 {
		ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPingHandler(func(appData string) error {
			ws.SetReadDeadline(time.Now().Add(wait))
			err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
		ws.SetPongHandler(func(string) error {
			ws.SetReadDeadline(time.Now().Add(wait))
			return nil
		})
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.connected.Store(true)
}

func (c *Conn) detach(ws *websocket.Conn) {
	c.connected.Store(false)
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
	ws.Close()
}

func (c *Conn) run(ctx context.Context, ws *websocket.Conn) {
	defer c.wg.Done()
	defer c.running.Store(false)

	for {
		c.readLoop(ws)
		c.detach(ws)
		c.fireClose()

		if ctx.Err() != nil {
			return
		}
		retry := c.retryReq.Swap(false)
		if !retry && !c.reconnect.Load() {
			return
		}

		next, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logging.Errorf("conn: reconnect to %s: %v", c.opts.URL, err)
			}
			return
		}
		c.reconnects.Add(1)
		c.attach(next)
		ws = next
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warnf("conn: read from %s: %v", c.opts.URL, err)
			} else {
				logging.Debugf("conn: connection to %s ended: %v", c.opts.URL, err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		c.mu.Lock()
		fn := c.onMessage
		c.mu.Unlock()
		if fn != nil {
			fn(data)
		}
	}
}

func (c *Conn) fireClose() {
	c.mu.Lock()
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Send writes data as one binary message.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.BinaryMessage, data)
}

// Retry drops the current connection and dials again, even when reconnect
// is disabled. The close handler fires for the dropped connection.
func (c *Conn) Retry() error {
	if !c.running.Load() {
		return ErrClosed
	}
	c.retryReq.Store(true)

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
	return nil
}

// Close disables reconnect and closes the connection. The close handler
// still fires for it.
func (c *Conn) Close() error {
	c.reconnect.Store(false)
	c.retryReq.Store(false)

	c.mu.Lock()
	ws := c.ws
	cancel := c.cancel
	c.mu.Unlock()

	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Cleanup closes the connection, waits for the read goroutine and drops
// both handlers.
func (c *Conn) Cleanup() {
	c.Close()
	c.wg.Wait()

	c.mu.Lock()
	c.onMessage = nil
	c.onClose = nil
	c.mu.Unlock()
}

func (c *Conn) Connected() bool        { return c.connected.Load() }
func (c *Conn) Active() bool           { return c.running.Load() }
func (c *Conn) Loading() bool          { return c.loading.Load() }
func (c *Conn) ReconnectEnabled() bool { return c.reconnect.Load() }
func (c *Conn) Reconnects() uint64     { return c.reconnects.Load() }

func (c *Conn) SetReconnectEnabled(on bool) {
	c.reconnect.Store(on)
}
