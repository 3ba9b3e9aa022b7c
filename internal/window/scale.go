package window

import (
	"image"

	"golang.org/x/image/draw"
)

// Letterbox returns the largest rectangle with the source aspect ratio that
// fits centred in a dw×dh target.
func Letterbox(dw, dh, sw, sh int) image.Rectangle {
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return image.Rectangle{}
	}
	w, h := dw, dw*sh/sw
	if h > dh {
		w, h = dh*sw/sh, dh
	}
	x := (dw - w) / 2
	y := (dh - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// ScaleFrame draws the sw×sh BGRA frame src letterboxed into the dw×dh BGRA
// buffer dst. The bars are left fully transparent.
func ScaleFrame(dst []byte, dw, dh int, src []byte, sw, sh int) {
	if len(dst) < dw*dh*4 || len(src) < sw*sh*4 {
		return
	}
	clear(dst[:dw*dh*4])

	r := Letterbox(dw, dh, sw, sh)
	if r.Empty() {
		return
	}

	// Scaling treats all four channels alike, so BGRA rows can pose as RGBA.
	d := &image.RGBA{Pix: dst, Stride: dw * 4, Rect: image.Rect(0, 0, dw, dh)}
	s := &image.RGBA{Pix: src, Stride: sw * 4, Rect: image.Rect(0, 0, sw, sh)}
	if r.Dx() == sw && r.Dy() == sh {
		draw.Copy(d, r.Min, s, s.Rect, draw.Src, nil)
		return
	}
	draw.ApproxBiLinear.Scale(d, r, s, s.Rect, draw.Src, nil)
}
