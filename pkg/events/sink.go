package events

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-daheng/pkg/hub"
	"github.com/teslashibe/go-daheng/pkg/sink"
)

// Sink turns delivered frames into events. Each event goes to the
// publisher and, when there are listeners, to the hub as JSON.
type Sink struct {
	pub    Publisher
	hub    *hub.Hub
	logger *slog.Logger
}

// NewSink creates an event sink. pub and h may be nil.
func NewSink(pub Publisher, h *hub.Hub, logger *slog.Logger) *Sink {
	if pub == nil {
		pub = Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{pub: pub, hub: h, logger: logger}
}

func (s *Sink) Name() string { return "events" }

func (s *Sink) Show(ctx context.Context, f sink.Frame) error {
	ev := FromFrame(f)
	if s.hub != nil && s.hub.ClientCount() > 0 {
		if err := s.hub.BroadcastJSON(ev); err != nil {
			s.logger.Warn("event broadcast failed", "frame_id", ev.FrameID, "error", err)
		}
	}
	return s.pub.Publish(ctx, ev)
}

// Close closes the publisher.
func (s *Sink) Close() error {
	return s.pub.Close()
}

var _ sink.Sink = (*Sink)(nil)
