// Package imgproc converts raw camera frames into displayable images.
package imgproc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"github.com/teslashibe/go-daheng/pkg/gxi"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrShortBuffer       = errors.New("frame buffer shorter than geometry")
)

// sampler reads frame samples as 8-bit values regardless of container width.
type sampler struct {
	data  []byte
	w, h  int
	wide  bool
	shift uint
}

func newSampler(raw *gxi.RawImage) (*sampler, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil frame: %w", ErrShortBuffer)
	}
	if raw.Width <= 0 || raw.Height <= 0 {
		return nil, fmt.Errorf("frame %d: bad geometry %dx%d", raw.FrameID, raw.Width, raw.Height)
	}
	if len(raw.Data) < raw.Bytes() {
		return nil, fmt.Errorf("frame %d: %d bytes for %dx%d %s: %w",
			raw.FrameID, len(raw.Data), raw.Width, raw.Height, raw.PixelFormat, ErrShortBuffer)
	}
	s := &sampler{data: raw.Data, w: raw.Width, h: raw.Height}
	if raw.PixelFormat.BytesPerPixel() == 2 {
		s.wide = true
		s.shift = uint(raw.PixelFormat.SignificantBits() - 8)
	}
	return s, nil
}

// at returns the sample at (x, y), mirroring coordinates outside the frame
// so that Bayer parity is preserved at the edges.
func (s *sampler) at(x, y int) uint32 {
	x = mirror(x, s.w)
	y = mirror(y, s.h)
	i := y*s.w + x
	if s.wide {
		return uint32(binary.LittleEndian.Uint16(s.data[i*2:])) >> s.shift
	}
	return uint32(s.data[i])
}

func mirror(i, n int) int {
	if n < 2 {
		return 0
	}
	if i < 0 {
		i = -i
	}
	if i >= n {
		i = 2*(n-1) - i
	}
	return i
}

// ToRGB converts a raw frame into an RGBA image. Bayer mosaics are
// demosaiced bilinearly, mono frames are replicated to three channels and
// 10/12/16-bit samples are scaled to 8 bits.
func ToRGB(raw *gxi.RawImage) (*image.RGBA, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil frame: %w", ErrShortBuffer)
	}

	pf := raw.PixelFormat
	switch {
	case pf.IsBayer():
		s, err := newSampler(raw)
		if err != nil {
			return nil, err
		}
		return demosaic(s, pf.ColorFilter()), nil
	case pf.IsMono():
		s, err := newSampler(raw)
		if err != nil {
			return nil, err
		}
		img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
		for y := 0; y < s.h; y++ {
			for x := 0; x < s.w; x++ {
				v := uint8(s.at(x, y))
				o := img.PixOffset(x, y)
				img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 0xff
			}
		}
		return img, nil
	case pf == gxi.PixelRGB8 || pf == gxi.PixelBGR8:
		if raw.Width <= 0 || raw.Height <= 0 {
			return nil, fmt.Errorf("frame %d: bad geometry %dx%d", raw.FrameID, raw.Width, raw.Height)
		}
		if len(raw.Data) < raw.Bytes() {
			return nil, fmt.Errorf("frame %d: %d bytes for %dx%d %s: %w",
				raw.FrameID, len(raw.Data), raw.Width, raw.Height, pf, ErrShortBuffer)
		}
		img := image.NewRGBA(image.Rect(0, 0, raw.Width, raw.Height))
		for i, o := 0, 0; i < raw.Width*raw.Height*3; i, o = i+3, o+4 {
			r, g, b := raw.Data[i], raw.Data[i+1], raw.Data[i+2]
			if pf == gxi.PixelBGR8 {
				r, b = b, r
			}
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, 0xff
		}
		return img, nil
	}
	return nil, fmt.Errorf("frame %d: %s: %w", raw.FrameID, pf, ErrUnsupportedFormat)
}

// bayerPatterns lists the 2x2 tile of each filter, row-major.
var bayerPatterns = map[gxi.ColorFilter]string{
	gxi.ColorFilterBayerRG: "RGGB",
	gxi.ColorFilterBayerGB: "GBRG",
	gxi.ColorFilterBayerGR: "GRBG",
	gxi.ColorFilterBayerBG: "BGGR",
}

func demosaic(s *sampler, filter gxi.ColorFilter) *image.RGBA {
	tile := bayerPatterns[filter]
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))

	for y := 0; y < s.h; y++ {
		// A green site on a row that also holds red takes red horizontally.
		redRow := tile[(y%2)*2] == 'R' || tile[(y%2)*2+1] == 'R'
		for x := 0; x < s.w; x++ {
			c := s.at(x, y)
			cross := (s.at(x-1, y) + s.at(x+1, y) + s.at(x, y-1) + s.at(x, y+1)) / 4
			diag := (s.at(x-1, y-1) + s.at(x+1, y-1) + s.at(x-1, y+1) + s.at(x+1, y+1)) / 4
			horiz := (s.at(x-1, y) + s.at(x+1, y)) / 2
			vert := (s.at(x, y-1) + s.at(x, y+1)) / 2

			var r, g, b uint32
			switch tile[(y%2)*2+x%2] {
			case 'R':
				r, g, b = c, cross, diag
			case 'B':
				r, g, b = diag, cross, c
			default:
				g = c
				if redRow {
					r, b = horiz, vert
				} else {
					r, b = vert, horiz
				}
			}

			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = uint8(r), uint8(g), uint8(b), 0xff
		}
	}
	return img
}
