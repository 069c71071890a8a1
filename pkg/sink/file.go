package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/teslashibe/go-daheng/pkg/imgproc"
)

// FileSink writes each frame as a numbered PNG or JPEG.
type FileSink struct {
	dir     string
	format  string
	quality int
	written atomic.Int64
}

// NewFileSink creates dir if needed. format is "png" or "jpeg".
func NewFileSink(dir, format string, quality int) (*FileSink, error) {
	switch format {
	case "", "png":
		format = "png"
	case "jpg", "jpeg":
		format = "jpeg"
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return &FileSink{dir: dir, format: format, quality: quality}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Show(ctx context.Context, f Frame) error {
	img, err := rgba(f)
	if err != nil {
		return err
	}

	var data []byte
	ext := "png"
	if s.format == "jpeg" {
		data, err = imgproc.EncodeJPEG(img, s.quality)
		ext = "jpg"
	} else {
		data, err = imgproc.EncodePNG(img)
	}
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	var id uint64
	if f.Raw != nil {
		id = f.Raw.FrameID
	}
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.%s", id, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.written.Add(1)
	return nil
}

// Written returns the number of files written.
func (s *FileSink) Written() int64 { return s.written.Load() }

func (s *FileSink) Close() error { return nil }
