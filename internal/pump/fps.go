package pump

import "time"

// fpsWindow is the minimum sample window for the client frame rate.
const fpsWindow = time.Second

// FPSCounter is a coarse windowed frame counter. The window is not aligned
// to wall-clock seconds; it restarts at the frame that closed the last one.
//
// A zero sample time means "no window open": the next Tick opens one.
type FPSCounter struct {
	lastSample time.Time
	count      int
}

// Tick records one frame at now. When at least one second has passed since
// the last sample it returns the number of frames counted in that window and
// starts a new window.
func (c *FPSCounter) Tick(now time.Time) (int, bool) {
	if c.lastSample.IsZero() {
		c.lastSample = now
	}
	c.count++

	if now.Sub(c.lastSample) < fpsWindow {
		return 0, false
	}

	n := c.count
	c.count = 0
	c.lastSample = now
	return n, true
}

// Reset zeroes both the sample time and the count.
func (c *FPSCounter) Reset() {
	c.lastSample = time.Time{}
	c.count = 0
}

// Count is the number of frames in the open window.
func (c *FPSCounter) Count() int {
	return c.count
}

// LastSample is the start of the open window, zero when none is open.
func (c *FPSCounter) LastSample() time.Time {
	return c.lastSample
}
