// Package state holds the last-value-wins containers the stream publishes to:
// the current frame timestamp, the server-reported frame rate and the
// client-measured frame rate. Each container starts out unknown.
package state

import "sync"

// Value is a concurrency-safe cell that is either unknown or holds a T.
type Value[T any] struct {
	mu    sync.RWMutex
	v     T
	known bool
}

func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	c.v = v
	c.known = true
	c.mu.Unlock()
}

// Clear puts the cell back into the unknown state.
func (c *Value[T]) Clear() {
	var zero T
	c.mu.Lock()
	c.v = zero
	c.known = false
	c.mu.Unlock()
}

// Get returns the value and whether it is known.
func (c *Value[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v, c.known
}

func (c *Value[T]) ptr() *T {
	v, ok := c.Get()
	if !ok {
		return nil
	}
	return &v
}

// Published is the set of values written by the stream pump.
type Published struct {
	FrameTimestamp Value[float64]
	ServerFPS      Value[float64]
	ClientFPS      Value[int]
}

func (p *Published) SetFrameTimestamp(ts float64) { p.FrameTimestamp.Set(ts) }
func (p *Published) SetServerFPS(fps float64)     { p.ServerFPS.Set(fps) }
func (p *Published) SetClientFPS(n int)           { p.ClientFPS.Set(n) }
func (p *Published) ClearClientFPS()              { p.ClientFPS.Clear() }

// Snapshot is a point-in-time copy. Unknown values are nil.
type Snapshot struct {
	FrameTimestamp *float64 `json:"frame_timestamp"`
	ServerFPS      *float64 `json:"server_fps"`
	ClientFPS      *int     `json:"client_fps"`
}

func (p *Published) Snapshot() Snapshot {
	return Snapshot{
		FrameTimestamp: p.FrameTimestamp.ptr(),
		ServerFPS:      p.ServerFPS.ptr(),
		ClientFPS:      p.ClientFPS.ptr(),
	}
}
