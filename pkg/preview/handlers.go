package preview

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/hub"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Uptime  string         `json:"uptime"`
	Session *camctl.Status `json:"session"`
	Frames  hub.Stats      `json:"frames"`
	Events  hub.Stats      `json:"events"`
}

const indexPage = `<!doctype html>
<html><head><title>gxdemo preview</title></head>
<body style="margin:0;background:#111;color:#ddd;font-family:sans-serif">
<img id="frame" style="max-width:100%">
<pre id="event"></pre>
<script>
const img = document.getElementById("frame");
const ev = document.getElementById("event");
const base = "ws://" + location.host;
const frames = new WebSocket(base + "/ws/frames");
frames.binaryType = "blob";
frames.onmessage = m => { const u = URL.createObjectURL(m.data); img.onload = () => URL.revokeObjectURL(u); img.src = u; };
const events = new WebSocket(base + "/ws/events");
events.onmessage = m => { ev.textContent = m.data; };
</script>
</body></html>`

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(indexPage)
}

// handleStatus reports the session and hub counters.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Frames: s.frames.Stats(),
		Events: s.events.Stats(),
	}
	if src := s.source(); src != nil {
		st := src.Status()
		resp.Session = &st
	}
	return c.JSON(resp)
}

func (s *Server) handleDevice(c *fiber.Ctx) error {
	src := s.source()
	if src == nil {
		return noSession(c)
	}
	return c.JSON(src.Info())
}

// handleFeatures returns every feature with its current value.
func (s *Server) handleFeatures(c *fiber.Ctx) error {
	src := s.source()
	if src == nil {
		return noSession(c)
	}
	if st := src.Status(); st.Closed {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "device closed",
		})
	}
	return c.JSON(src.Snapshot())
}

func noSession(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "no device open",
	})
}
