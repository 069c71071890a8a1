package imgproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/teslashibe/go-daheng/pkg/gxi"
)

// Pixels is a dense 8-bit array in height, width, channel order.
type Pixels struct {
	Width    int
	Height   int
	Channels int
	Data     []uint8
}

// At returns the sample of channel c at (x, y).
func (p Pixels) At(x, y, c int) uint8 {
	return p.Data[(y*p.Width+x)*p.Channels+c]
}

// Array extracts the pixel array of a frame. Mono frames give one channel,
// everything else is converted to three-channel RGB.
func Array(raw *gxi.RawImage) (Pixels, error) {
	if raw != nil && raw.PixelFormat.IsMono() {
		s, err := newSampler(raw)
		if err != nil {
			return Pixels{}, err
		}
		p := Pixels{Width: s.w, Height: s.h, Channels: 1, Data: make([]uint8, s.w*s.h)}
		for y := 0; y < s.h; y++ {
			for x := 0; x < s.w; x++ {
				p.Data[y*s.w+x] = uint8(s.at(x, y))
			}
		}
		return p, nil
	}

	img, err := ToRGB(raw)
	if err != nil {
		return Pixels{}, err
	}
	return FromRGBA(img), nil
}

// FromRGBA drops the alpha channel of img.
func FromRGBA(img *image.RGBA) Pixels {
	b := img.Bounds()
	p := Pixels{Width: b.Dx(), Height: b.Dy(), Channels: 3, Data: make([]uint8, b.Dx()*b.Dy()*3)}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			o := img.PixOffset(x, y)
			p.Data[i], p.Data[i+1], p.Data[i+2] = img.Pix[o], img.Pix[o+1], img.Pix[o+2]
			i += 3
		}
	}
	return p
}

// Expand3 replicates a single grey channel into three. Three-channel
// arrays are returned unchanged.
func (p Pixels) Expand3() Pixels {
	if p.Channels != 1 {
		return p
	}
	out := Pixels{Width: p.Width, Height: p.Height, Channels: 3, Data: make([]uint8, len(p.Data)*3)}
	for i, v := range p.Data {
		out.Data[i*3], out.Data[i*3+1], out.Data[i*3+2] = v, v, v
	}
	return out
}

// Planar reorders the array to channel, height, width.
func (p Pixels) Planar() []uint8 {
	plane := p.Width * p.Height
	out := make([]uint8, len(p.Data))
	for i := 0; i < plane; i++ {
		for c := 0; c < p.Channels; c++ {
			out[c*plane+i] = p.Data[i*p.Channels+c]
		}
	}
	return out
}

// Image wraps the array as an image.Image.
func (p Pixels) Image() (image.Image, error) {
	switch p.Channels {
	case 1:
		g := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
		copy(g.Pix, p.Data)
		return g, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
		for i, o := 0, 0; i < len(p.Data); i, o = i+3, o+4 {
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = p.Data[i], p.Data[i+1], p.Data[i+2], 0xff
		}
		return img, nil
	}
	return nil, fmt.Errorf("cannot build image with %d channels", p.Channels)
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
