// Package pump drains raw stream messages into a rendering surface.
//
// Messages coalesce: only the most recent undrained message is kept, so a
// burst that arrives while a drain is running is rendered as its last frame.
// At most one drain runs at a time and drained messages are handled in
// arrival order. The pump owns the single displayable handle assigned to the
// surface and releases it when it is superseded or the stream closes.
package pump

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/frameview/internal/blob"
	"github.com/example/frameview/internal/frame"
	"github.com/example/frameview/internal/logging"
)

// Surface is the image element frames are rendered into.
type Surface interface {
	// Mounted reports whether the surface can currently display a source.
	Mounted() bool
	// SetSource assigns h and calls onLoad once h has finished loading.
	SetSource(h blob.Handle, onLoad func())
}

// Resources creates and releases displayable handles.
type Resources interface {
	Create(data []byte, mime string) blob.Handle
	Release(h blob.Handle) error
}

// State receives published values. Writes are independent and last-value-wins.
type State interface {
	SetFrameTimestamp(ts float64)
	SetServerFPS(fps float64)
	SetClientFPS(n int)
	ClearClientFPS()
}

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Option configures a Pump.
type Option func(*Pump)

// WithOnMessage sets a hook called with every drained raw message before it
// is decoded.
func WithOnMessage(fn func(raw []byte)) Option {
	return func(p *Pump) { p.onMessage = fn }
}

// WithOnClose sets a hook called first thing on stream close.
func WithOnClose(fn func()) Option {
	return func(p *Pump) { p.onClose = fn }
}

func WithLogger(l Logger) Option {
	return func(p *Pump) { p.logger = l }
}

// WithClock replaces the monotonic clock used by the client FPS counter.
func WithClock(now func() time.Time) Option {
	return func(p *Pump) { p.now = now }
}

// Stats counts pump activity since creation.
type Stats struct {
	Received   uint64 `json:"received"`
	Drained    uint64 `json:"drained"`
	Superseded uint64 `json:"superseded"`
	Truncated  uint64 `json:"truncated"`
	Unmounted  uint64 `json:"unmounted"`
	Rendered   uint64 `json:"rendered"`
	Panics     uint64 `json:"panics"`
	Closes     uint64 `json:"closes"`
}

type Pump struct {
	surface   Surface
	resources Resources
	state     State
	onMessage func([]byte)
	onClose   func()
	logger    Logger
	now       func() time.Time

	pending  atomic.Pointer[[]byte]
	draining atomic.Bool

	// mu guards held and fps. Drains and closes may run on different
	// goroutines when the transport delivers them that way.
	mu    sync.Mutex
	held  blob.Handle
	fps   FPSCounter
	ready *Readiness

	received   atomic.Uint64
	drained    atomic.Uint64
	superseded atomic.Uint64
	truncated  atomic.Uint64
	unmounted  atomic.Uint64
	rendered   atomic.Uint64
	panics     atomic.Uint64
	closes     atomic.Uint64
}

func New(surface Surface, resources Resources, st State, opts ...Option) *Pump {
	p := &Pump{
		surface:   surface,
		resources: resources,
		state:     st,
		logger:    logging.Printf{},
		now:       time.Now,
		ready:     NewReadiness(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnRawMessage makes raw the pending message, discarding any older pending
// one, and drains unless a drain is already running. raw must not be
// modified by the caller afterwards.
func (p *Pump) OnRawMessage(raw []byte) {
	p.received.Add(1)
	if old := p.pending.Swap(&raw); old != nil {
		p.superseded.Add(1)
	}
	p.drain()
}

// drain runs the single-flight loop. After releasing the guard it checks for
// a message that arrived between the last take and the release, since the
// caller that delivered it saw the guard held and returned.
func (p *Pump) drain() {
	for p.pending.Load() != nil {
		if !p.draining.CompareAndSwap(false, true) {
			return
		}
		p.drainPending()
	}
}

func (p *Pump) drainPending() {
	defer p.draining.Store(false)

	for {
		raw := p.pending.Swap(nil)
		if raw == nil {
			return
		}
		p.drainOne(*raw)
	}
}

func (p *Pump) drainOne(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Errorf("pump: drain panic: %v", r)
		}
	}()

	if err := p.process(raw); err != nil {
		if errors.Is(err, frame.ErrTruncatedFrame) {
			p.truncated.Add(1)
		}
		p.logger.Errorf("pump: dropped frame: %v", err)
	}
}

func (p *Pump) process(raw []byte) error {
	p.drained.Add(1)

	p.mu.Lock()
	n, sampled := p.fps.Tick(p.now())
	p.mu.Unlock()
	if sampled {
		p.state.SetClientFPS(n)
	}

	if p.onMessage != nil {
		p.onMessage(raw)
	}

	f, err := frame.Decode(raw)
	if err != nil {
		return err
	}

	p.mu.Lock()
	prev := p.held
	p.held = ""
	p.mu.Unlock()
	if prev != "" {
		p.release(prev)
	}

	h := p.resources.Create(f.Image, frame.MIMEType)

	p.state.SetFrameTimestamp(f.Timestamp)
	p.state.SetServerFPS(f.ServerFPS)

	if !p.surface.Mounted() {
		p.unmounted.Add(1)
		p.release(h)
		return nil
	}

	p.ready.Assigned()
	p.surface.SetSource(h, p.HandleImageLoad)

	p.mu.Lock()
	p.held = h
	p.mu.Unlock()

	p.rendered.Add(1)
	return nil
}

func (p *Pump) release(h blob.Handle) {
	if err := p.resources.Release(h); err != nil {
		p.logger.Errorf("pump: release %s: %v", h, err)
	}
}

// HandleImageLoad is the surface's load-completion handler.
func (p *Pump) HandleImageLoad() {
	p.ready.Loaded()
}

// OnClose tears down after the transport closed: it runs the close hook,
// releases the held handle, raises the loading flag and resets the client
// frame rate to unknown with an empty counter.
func (p *Pump) OnClose() {
	p.closes.Add(1)

	if p.onClose != nil {
		p.onClose()
	}

	p.mu.Lock()
	held := p.held
	p.held = ""
	p.fps.Reset()
	p.mu.Unlock()

	if held != "" {
		p.release(held)
	}

	p.ready.Closed()
	p.state.ClearClientFPS()
}

// Held returns the handle currently assigned to the surface, if any.
func (p *Pump) Held() (blob.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held, p.held != ""
}

// Counter returns the open FPS window: frame count and start time.
func (p *Pump) Counter() (int, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fps.Count(), p.fps.LastSample()
}

func (p *Pump) ImgInitted() bool { return p.ready.Initted() }
func (p *Pump) ImgLoading() bool { return p.ready.Loading() }
func (p *Pump) Phase() Phase     { return p.ready.Phase() }

// Draining reports whether a drain is in progress.
func (p *Pump) Draining() bool { return p.draining.Load() }

func (p *Pump) Stats() Stats {
	return Stats{
		Received:   p.received.Load(),
		Drained:    p.drained.Load(),
		Superseded: p.superseded.Load(),
		Truncated:  p.truncated.Load(),
		Unmounted:  p.unmounted.Load(),
		Rendered:   p.rendered.Load(),
		Panics:     p.panics.Load(),
		Closes:     p.closes.Load(),
	}
}
