package surface

import (
	"sync"
	"sync/atomic"
)

const ringSlots = 3

// Frame is one decoded BGRA image held by the ring buffer.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Seq    uint64
}

// RingBuffer keeps the last few decoded frames so a painter can read the
// newest one while the decoder fills the next slot.
type RingBuffer struct {
	frames    [ringSlots]*Frame
	writeIdx  uint64
	mu        sync.RWMutex
	hasFrames atomic.Bool
}

func NewRingBuffer() *RingBuffer {
	rb := &RingBuffer{}
	for i := range rb.frames {
		rb.frames[i] = &Frame{
			Data: make([]byte, 0, 1024*1024),
		}
	}
	return rb
}

func (rb *RingBuffer) Write(data []byte, width, height int) uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	frame := rb.frames[rb.writeIdx%ringSlots]
	if cap(frame.Data) < len(data) {
		frame.Data = make([]byte, len(data))
	} else {
		frame.Data = frame.Data[:len(data)]
	}
	copy(frame.Data, data)
	frame.Width = width
	frame.Height = height

	rb.writeIdx++
	frame.Seq = rb.writeIdx
	rb.hasFrames.Store(true)
	return frame.Seq
}

// ReadLatest copies the newest frame into dst (grown if needed) and returns
// it with Data pointing at the copy.
func (rb *RingBuffer) ReadLatest(dst []byte) (Frame, bool) {
	if !rb.hasFrames.Load() {
		return Frame{}, false
	}

	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.writeIdx == 0 {
		return Frame{}, false
	}
	frame := rb.frames[(rb.writeIdx-1)%ringSlots]
	if len(frame.Data) == 0 {
		return Frame{}, false
	}

	if cap(dst) < len(frame.Data) {
		dst = make([]byte, len(frame.Data))
	}
	dst = dst[:len(frame.Data)]
	copy(dst, frame.Data)

	return Frame{Data: dst, Width: frame.Width, Height: frame.Height, Seq: frame.Seq}, true
}

// Seq is the sequence number of the newest frame, 0 when empty.
func (rb *RingBuffer) Seq() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.writeIdx
}

func (rb *RingBuffer) HasFrames() bool {
	return rb.hasFrames.Load()
}
