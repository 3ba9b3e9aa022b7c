// Package feed serves a frame stream to websocket viewers.
//
// Every frame is sent as one binary message in the frame envelope. Each
// viewer has a single send slot: a frame that is still waiting when the next
// one is broadcast is replaced, so slow viewers skip frames instead of
// queueing them.
package feed

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/example/frameview/internal/frame"
	"github.com/example/frameview/internal/logging"
)

const StreamPath = "/stream"

// Stats counts broadcast activity.
type Stats struct {
	Clients   int    `json:"clients"`
	Broadcast uint64 `json:"broadcast"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
}

type client struct {
	ws   *websocket.Conn
	slot atomic.Pointer[[]byte]
	wake chan struct{}
	gone chan struct{}
}

func newClient(ws *websocket.Conn) *client {
	return &client{
		ws:   ws,
		wake: make(chan struct{}, 1),
		gone: make(chan struct{}),
	}
}

// offer replaces the pending message. It reports whether one was dropped.
func (c *client) offer(msg []byte) bool {
	dropped := c.slot.Swap(&msg) != nil
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return dropped
}

type Server struct {
	mu         sync.Mutex
	clients    map[*client]struct{}
	httpServer *http.Server
	wg         sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once

	broadcast atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

func NewServer() *Server {
	return &Server{
		clients: make(map[*client]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Handler serves the stream at StreamPath. Viewers that send no Origin
// header are accepted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(StreamPath, websocket.Server{
		Handler:   s.handleClient,
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	})
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("feed: listen: %w", err)
	}
	s.httpServer = &http.Server{Handler: s.Handler()}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logging.Infof("Feed server listening on ws://%s%s", ln.Addr(), StreamPath)
		if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
			logging.Errorf("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects all viewers and shuts the listener down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.httpServer != nil {
			s.httpServer.Close()
		}
		s.wg.Wait()
	})
}

func (s *Server) handleClient(ws *websocket.Conn) {
	defer ws.Close()
	ws.PayloadType = websocket.BinaryFrame

	c := newClient(ws)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	logging.Infof("Viewer connected: %s (%d total)", ws.Request().RemoteAddr, n)

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		logging.Infof("Viewer disconnected: %s", ws.Request().RemoteAddr)
	}()

	go func() {
		defer close(c.gone)
		var msg []byte
		for {
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-c.gone:
			return
		case <-c.wake:
		}

		msg := c.slot.Swap(nil)
		if msg == nil {
			continue
		}
		if err := websocket.Message.Send(ws, *msg); err != nil {
			logging.Debugf("Send to %s failed: %v", ws.Request().RemoteAddr, err)
			return
		}
		s.sent.Add(1)
	}
}

// BroadcastRaw offers msg to every connected viewer as is.
func (s *Server) BroadcastRaw(msg []byte) {
	s.broadcast.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if c.offer(msg) {
			s.dropped.Add(1)
		}
	}
}

// Broadcast encodes f and offers it to every connected viewer.
func (s *Server) Broadcast(f frame.Frame) {
	s.BroadcastRaw(frame.Encode(f))
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Stats() Stats {
	return Stats{
		Clients:   s.Clients(),
		Broadcast: s.broadcast.Load(),
		Sent:      s.sent.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Run broadcasts frames from src at the target fps until ctx is done or the
// server stops. Each frame carries the wall-clock send time in seconds and
// the rate actually achieved over the last second.
func (s *Server) Run(ctx context.Context, src Source, fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("feed: fps must be positive, got %v", fps)
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	meter := rateMeter{rate: fps}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case now := <-ticker.C:
			img, err := src.Next()
			if err != nil {
				return err
			}
			s.Broadcast(frame.Frame{
				Timestamp: float64(now.UnixNano()) / float64(time.Second),
				ServerFPS: meter.tick(now),
				Image:     img,
			})
		}
	}
}

// rateMeter measures frames per second over windows of at least a second.
type rateMeter struct {
	start time.Time
	count int
	rate  float64
}

func (m *rateMeter) tick(now time.Time) float64 {
	if m.start.IsZero() {
		m.start = now
	}
	m.count++
	if elapsed := now.Sub(m.start); elapsed >= time.Second {
		m.rate = float64(m.count) / elapsed.Seconds()
		m.count = 0
		m.start = now
	}
	return m.rate
}
