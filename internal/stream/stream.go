// Package stream binds a frame transport to a rendering surface.
//
// A Stream is the transport's own control surface with image readiness
// added: callers connect, send, close and retry through it exactly as they
// would through the transport, and read whether the surface has shown a
// frame yet and whether one is loading.
package stream

import (
	"context"

	"github.com/example/frameview/internal/pump"
)

// Controls is the connection API passed through to callers unchanged.
type Controls interface {
	Init(ctx context.Context) error
	Send(data []byte) error
	Close() error
	Cleanup()
	Retry() error

	Connected() bool
	Active() bool
	Loading() bool
	ReconnectEnabled() bool
	SetReconnectEnabled(on bool)
}

// Transport delivers binary messages and close events.
type Transport interface {
	Controls
	OnMessage(fn func(data []byte))
	OnClose(fn func())
}

type Stream struct {
	Controls
	pump *pump.Pump
}

// New registers the pump on t. Frames render into surface; resources holds
// the displayed handle; st receives timestamps and frame rates.
func New(t Transport, surface pump.Surface, resources pump.Resources, st pump.State, opts ...pump.Option) *Stream {
	p := pump.New(surface, resources, st, opts...)
	t.OnMessage(p.OnRawMessage)
	t.OnClose(p.OnClose)
	return &Stream{Controls: t, pump: p}
}

// ImgInitted reports whether any frame has finished loading.
func (s *Stream) ImgInitted() bool { return s.pump.ImgInitted() }

// ImgLoading reports whether the surface is waiting for a frame.
func (s *Stream) ImgLoading() bool { return s.pump.ImgLoading() }

// OnImageLoad is the surface's load-completion handler.
func (s *Stream) OnImageLoad() { s.pump.HandleImageLoad() }

func (s *Stream) Phase() pump.Phase { return s.pump.Phase() }

func (s *Stream) Stats() pump.Stats { return s.pump.Stats() }
