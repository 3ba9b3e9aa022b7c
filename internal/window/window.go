// Package window shows the rendering surface in a borderless layered window.
// Only Windows is supported; elsewhere New returns ErrUnsupported and the
// viewer runs headless.
package window

import (
	"errors"

	"github.com/example/frameview/internal/surface"
)

var ErrUnsupported = errors.New("window: not supported on this platform")

// FrameSource is read by the paint loop.
type FrameSource interface {
	FrameSeq() uint64
	CurrentFrame(dst []byte) (surface.Frame, bool)
}

type Options struct {
	Frames FrameSource
	// Status, if set, is appended to the window title once a second.
	Status func() string
	// OnReconnect, if set, adds a Reconnect item to the context menu.
	OnReconnect func()
}
