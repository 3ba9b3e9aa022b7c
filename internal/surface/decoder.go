package surface

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// DecodeImageToBGRA decodes a JPEG, PNG, GIF or WebP payload into tightly
// packed BGRA rows.
func DecodeImageToBGRA(data []byte) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	buf := make([]byte, width*height*4)
	src := rgba.Pix
	for i := 0; i+3 < len(src) && i+3 < len(buf); i += 4 {
		buf[i+0] = src[i+2]
		buf[i+1] = src[i+1]
		buf[i+2] = src[i+0]
		buf[i+3] = src[i+3]
	}

	return buf, width, height, nil
}

// CreateBlankFrame returns a width×height BGRA frame filled with col.
func CreateBlankFrame(width, height int, col color.NRGBA) []byte {
	bgra := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		idx := i * 4
		bgra[idx+0] = col.B
		bgra[idx+1] = col.G
		bgra[idx+2] = col.R
		bgra[idx+3] = col.A
	}
	return bgra
}
