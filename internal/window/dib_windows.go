//go:build windows

package window

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
)

const (
	BI_RGB         = 0
	DIB_RGB_COLORS = 0

	AC_SRC_OVER  = 0x00
	AC_SRC_ALPHA = 0x01
	ULW_ALPHA    = 0x02
)

type BITMAPINFOHEADER struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type BITMAPINFO struct {
	BmiHeader BITMAPINFOHEADER
	BmiColors [1]uint32
}

type BLENDFUNCTION struct {
	BlendOp             byte
	BlendFlags          byte
	SourceConstantAlpha byte
	AlphaFormat         byte
}

type SIZE struct {
	CX, CY int32
}

// dib is a top-down 32-bit BGRA bitmap selected into a memory DC.
type dib struct {
	hdc    windows.Handle
	bitmap windows.Handle
	pixels []byte
	width  int
	height int
}

func newDIB(width, height int) (*dib, error) {
	hdcPtr, _, e := procCreateCompatibleDC.Call(0)
	if hdcPtr == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC failed: %v", e)
	}

	bmi := BITMAPINFO{
		BmiHeader: BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(BITMAPINFOHEADER{})),
			BiWidth:       int32(width),
			BiHeight:      int32(-height),
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: BI_RGB,
		},
	}

	var bits unsafe.Pointer
	bmpPtr, _, e := procCreateDIBSection.Call(
		hdcPtr,
		uintptr(unsafe.Pointer(&bmi)),
		DIB_RGB_COLORS,
		uintptr(unsafe.Pointer(&bits)),
		0, 0,
	)
	if bmpPtr == 0 {
		procDeleteDC.Call(hdcPtr)
		return nil, fmt.Errorf("CreateDIBSection failed: %v", e)
	}
	procSelectObject.Call(hdcPtr, bmpPtr)

	return &dib{
		hdc:    windows.Handle(hdcPtr),
		bitmap: windows.Handle(bmpPtr),
		pixels: unsafe.Slice((*byte)(bits), width*height*4),
		width:  width,
		height: height,
	}, nil
}

// alphaAt returns the alpha of the pixel at x, y, or 0 outside the bitmap.
func (d *dib) alphaAt(x, y int) uint8 {
	if x < 0 || y < 0 || x >= d.width || y >= d.height {
		return 0
	}
	return d.pixels[(y*d.width+x)*4+3]
}

// present pushes the bitmap to the layered window hwnd with per-pixel alpha.
func (d *dib) present(hwnd windows.HWND) error {
	srcPt := POINT{0, 0}
	sz := SIZE{int32(d.width), int32(d.height)}
	blend := BLENDFUNCTION{
		BlendOp:             AC_SRC_OVER,
		SourceConstantAlpha: 255,
		AlphaFormat:         AC_SRC_ALPHA,
	}
	ret, _, err := procUpdateLayeredWindow.Call(
		uintptr(hwnd),
		0,
		0,
		uintptr(unsafe.Pointer(&sz)),
		uintptr(d.hdc),
		uintptr(unsafe.Pointer(&srcPt)),
		0,
		uintptr(unsafe.Pointer(&blend)),
		ULW_ALPHA,
	)
	if ret == 0 {
		return fmt.Errorf("UpdateLayeredWindow failed: %v", err)
	}
	return nil
}

func (d *dib) release() {
	if d.bitmap != 0 {
		procDeleteObject.Call(uintptr(d.bitmap))
		d.bitmap = 0
	}
	if d.hdc != 0 {
		procDeleteDC.Call(uintptr(d.hdc))
		d.hdc = 0
	}
	d.pixels = nil
}
