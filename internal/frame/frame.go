// Package frame implements the fixed-offset binary envelope carried by each
// stream message.
//
// Layout (little-endian):
//
//	[0,8)    float64 timestamp, unit defined by the sender
//	[8,16)   float64 server-measured frame rate
//	[16,end) image payload, opaque (normally JPEG)
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the minimum length of a valid message.
const HeaderSize = 16

// MIMEType is the content type attached to decoded image payloads.
const MIMEType = "image/jpeg"

// ErrTruncatedFrame is returned by Decode for buffers shorter than HeaderSize.
var ErrTruncatedFrame = errors.New("frame: truncated frame")

// Frame is one decoded stream message. Image aliases the decoded buffer.
type Frame struct {
	Timestamp float64
	ServerFPS float64
	Image     []byte
}

// Decode splits buf into header fields and image payload. No range or format
// validation is done on the fields; a bad payload shows up later as a load
// failure on the rendering surface.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: got %d bytes, need %d", ErrTruncatedFrame, len(buf), HeaderSize)
	}

	return Frame{
		Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])),
		ServerFPS: math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
		Image:     buf[HeaderSize:],
	}, nil
}

// Encode returns a new message buffer for f.
func Encode(f Frame) []byte {
	return Append(make([]byte, 0, HeaderSize+len(f.Image)), f)
}

// Append appends the encoding of f to dst.
func Append(dst []byte, f Frame) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(f.Timestamp))
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(f.ServerFPS))
	return append(dst, f.Image...)
}
