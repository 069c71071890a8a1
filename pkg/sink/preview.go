package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-daheng/pkg/hub"
	"github.com/teslashibe/go-daheng/pkg/imgproc"
)

// Preview encodes frames as JPEG and broadcasts them on a hub.
type Preview struct {
	hub         *hub.Hub
	quality     int
	minInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPreview broadcasts at most one frame per minInterval.
func NewPreview(h *hub.Hub, quality int, minInterval time.Duration) *Preview {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Preview{hub: h, quality: quality, minInterval: minInterval}
}

func (p *Preview) Name() string { return "preview" }

func (p *Preview) Show(ctx context.Context, f Frame) error {
	if p.hub.ClientCount() == 0 {
		return nil
	}

	p.mu.Lock()
	if p.minInterval > 0 && time.Since(p.last) < p.minInterval {
		p.mu.Unlock()
		return nil
	}
	p.last = time.Now()
	p.mu.Unlock()

	img, err := rgba(f)
	if err != nil {
		return err
	}
	data, err := imgproc.EncodeJPEG(img, p.quality)
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	p.hub.BroadcastBinary(data)
	return nil
}

func (p *Preview) Close() error { return nil }
