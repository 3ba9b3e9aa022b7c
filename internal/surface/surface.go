// Package surface is an image element for decoded stream frames.
//
// A source is assigned by handle. The surface resolves the handle at once,
// so the caller may release it right after assignment, then decodes on its
// own goroutine. Assigning a new source aborts a load that has not finished;
// an aborted load never reports completion. Decode failures go to the error
// handler and leave the previous image on display.
package surface

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/example/frameview/internal/blob"
	"github.com/example/frameview/internal/logging"
)

// Resolver maps handles to their bytes.
type Resolver interface {
	Resolve(h blob.Handle) ([]byte, string, error)
}

type request struct {
	gen    uint64
	handle blob.Handle
	data   []byte
	mime   string
	onLoad func()
}

// Stats counts load outcomes.
type Stats struct {
	Loads    uint64 `json:"loads"`
	Failures uint64 `json:"failures"`
	Aborted  uint64 `json:"aborted"`
}

type Surface struct {
	resolver Resolver
	ring     *RingBuffer
	mounted  atomic.Bool

	mu      sync.Mutex
	cond    *sync.Cond
	gen     uint64
	next    *request
	source  blob.Handle
	payload []byte
	mime    string
	onError func(error)
	closed  bool
	done    chan struct{}

	loads    atomic.Uint64
	failures atomic.Uint64
	aborted  atomic.Uint64
}

// New starts the decode goroutine. Call Close to stop it.
func New(r Resolver) *Surface {
	s := &Surface{
		resolver: r,
		ring:     NewRingBuffer(),
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.decodeLoop()
	return s
}

func (s *Surface) Mount() {
	s.mounted.Store(true)
}

// Unmount detaches the surface and aborts any pending load.
func (s *Surface) Unmount() {
	s.mounted.Store(false)

	s.mu.Lock()
	s.gen++
	if s.next != nil {
		s.next = nil
		s.aborted.Add(1)
	}
	s.mu.Unlock()
}

func (s *Surface) Mounted() bool {
	return s.mounted.Load()
}

// OnError sets the handler for resolve and decode failures.
func (s *Surface) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// SetSource assigns h. onLoad runs on the decode goroutine once h is
// decoded and displayed, unless a newer source was assigned first.
func (s *Surface) SetSource(h blob.Handle, onLoad func()) {
	data, mime, err := s.resolver.Resolve(h)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.source = h
	if err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("surface: resolve %s: %w", h, err))
		return
	}
	if s.next != nil {
		s.aborted.Add(1)
	}
	s.next = &request{gen: s.gen, handle: h, data: data, mime: mime, onLoad: onLoad}
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Surface) decodeLoop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.next == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		req := s.next
		s.next = nil
		s.mu.Unlock()

		bgra, width, height, err := DecodeImageToBGRA(req.data)

		s.mu.Lock()
		if req.gen != s.gen {
			s.mu.Unlock()
			s.aborted.Add(1)
			continue
		}
		if err != nil {
			s.mu.Unlock()
			s.fail(fmt.Errorf("surface: load %s: %w", req.handle, err))
			continue
		}
		s.ring.Write(bgra, width, height)
		s.payload = req.data
		s.mime = req.mime
		s.mu.Unlock()

		s.loads.Add(1)
		if req.onLoad != nil {
			req.onLoad()
		}
	}
}

func (s *Surface) fail(err error) {
	s.failures.Add(1)

	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()

	if fn != nil {
		fn(err)
		return
	}
	logging.Errorf("%v", err)
}

// Source is the last assigned handle. It may already be released.
func (s *Surface) Source() blob.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Payload returns the encoded bytes and content type of the image on display.
func (s *Surface) Payload() ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload, s.mime, s.payload != nil
}

// FrameSeq changes every time a new frame is displayed.
func (s *Surface) FrameSeq() uint64 {
	return s.ring.Seq()
}

// CurrentFrame copies the displayed BGRA frame into dst.
func (s *Surface) CurrentFrame(dst []byte) (Frame, bool) {
	return s.ring.ReadLatest(dst)
}

func (s *Surface) Stats() Stats {
	return Stats{
		Loads:    s.loads.Load(),
		Failures: s.failures.Load(),
		Aborted:  s.aborted.Load(),
	}
}

// Close stops the decode goroutine. Pending loads are dropped.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.next = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
}
