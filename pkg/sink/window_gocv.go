//go:build gocv

package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// WindowAvailable reports whether this build can open display windows.
const WindowAvailable = true

// Window shows frames in an OpenCV HighGUI window.
type Window struct {
	mu     sync.Mutex
	window *gocv.Window
	closed bool
}

// NewWindow opens a window titled name.
func NewWindow(name string) (*Window, error) {
	return &Window{window: gocv.NewWindow(name)}, nil
}

func (w *Window) Name() string { return "window" }

func (w *Window) Show(ctx context.Context, f Frame) error {
	if f.Pixels.Data == nil {
		img, err := rgba(f)
		if err != nil {
			return err
		}
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return fmt.Errorf("image to mat: %w", err)
		}
		defer mat.Close()
		return w.show(mat)
	}

	px := f.Pixels.Expand3()
	mat, err := gocv.NewMatFromBytes(px.Height, px.Width, gocv.MatTypeCV8UC3, px.Data)
	if err != nil {
		return fmt.Errorf("mat from pixels: %w", err)
	}
	defer mat.Close()

	// HighGUI expects BGR.
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBToBGR)
	return w.show(bgr)
}

func (w *Window) show(mat gocv.Mat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("window closed")
	}
	w.window.IMShow(mat)
	w.window.WaitKey(1)
	return nil
}

func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.window.Close()
}
