// Package convert handles the RGB565 pixel format shared by the graphics
// host and the panel drivers.
//
// Buffers are row-major, 2 bytes per pixel, little-endian (the layout the
// graphics host renders into). ST77xx controllers expect the same pixels
// big-endian on the wire; SwapBytes does that conversion.
package convert

import (
	"fmt"
	"image"
	"image/color"
)

// BytesPerPixel is the size of one RGB565 pixel.
const BytesPerPixel = 2

// RGB565 packs 8-bit channels into rrrrrggggggbbbbb.
func RGB565(r, g, b uint8) uint16 {
	rr := uint16(r>>3) & 0x1F
	gg := uint16(g>>2) & 0x3F
	bb := uint16(b>>3) & 0x1F
	return (rr << 11) | (gg << 5) | bb
}

// RGB888 expands a packed RGB565 pixel back to 8-bit channels.
func RGB888(p uint16) (r, g, b uint8) {
	rr := (p >> 11) & 0x1F
	gg := (p >> 5) & 0x3F
	bb := p & 0x1F

	r = uint8((rr * 255) / 31)
	g = uint8((gg * 255) / 63)
	b = uint8((bb * 255) / 31)
	return r, g, b
}

// ColorTo565 converts any color.Color, ignoring alpha.
func ColorTo565(c color.Color) uint16 {
	r, g, b, _ := c.RGBA()
	return RGB565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// Put stores p little-endian at pixel index i of buf.
func Put(buf []byte, i int, p uint16) {
	buf[i*2] = byte(p)
	buf[i*2+1] = byte(p >> 8)
}

// Get loads the little-endian pixel at index i of buf.
func Get(buf []byte, i int) uint16 {
	return uint16(buf[i*2]) | uint16(buf[i*2+1])<<8
}

// SwapBytes copies src into dst exchanging the two bytes of every pixel and
// returns the number of bytes written. An odd trailing byte is not copied.
func SwapBytes(dst, src []byte) int {
	n := min(len(dst), len(src))
	n &^= 1
	for i := 0; i < n; i += 2 {
		dst[i] = src[i+1]
		dst[i+1] = src[i]
	}
	return n
}

// SubRect copies the w×h block at (x, y) out of a buffer whose rows are
// stride pixels wide.
func SubRect(src []byte, stride, x, y, w, h int) ([]byte, error) {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > stride {
		return nil, fmt.Errorf("convert: invalid sub-rectangle %dx%d at (%d,%d) in stride %d", w, h, x, y, stride)
	}
	if need := ((y+h-1)*stride + x + w) * BytesPerPixel; len(src) < need {
		return nil, fmt.Errorf("convert: buffer too small: have %d bytes, need %d", len(src), need)
	}
	out := make([]byte, w*h*BytesPerPixel)
	for row := 0; row < h; row++ {
		from := ((y+row)*stride + x) * BytesPerPixel
		copy(out[row*w*BytesPerPixel:], src[from:from+w*BytesPerPixel])
	}
	return out, nil
}

// ToRGBA expands a w×h RGB565 buffer into an opaque RGBA image.
func ToRGBA(src []byte, w, h int) (*image.RGBA, error) {
	if len(src) < w*h*BytesPerPixel {
		return nil, fmt.Errorf("convert: expected %d bytes for %dx%d, got %d", w*h*BytesPerPixel, w, h, len(src))
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	dst := img.Pix
	for i := 0; i < w*h; i++ {
		r, g, b := RGB888(Get(src, i))
		j := i * 4
		dst[j+0] = r
		dst[j+1] = g
		dst[j+2] = b
		dst[j+3] = 0xFF
	}
	return img, nil
}
