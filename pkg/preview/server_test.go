package preview

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/gxi"
)

type fakeSource struct {
	closed bool
}

func (f *fakeSource) Status() camctl.Status {
	return camctl.Status{SessionID: "s-1", Mode: camctl.ModeActive, Frames: 12, Closed: f.closed}
}

func (f *fakeSource) Info() gxi.DeviceInfo {
	return gxi.DeviceInfo{Index: 1, ModelName: "MER2-503-23GC", SerialNumber: "KJ0230040001"}
}

func (f *fakeSource) Snapshot() []camctl.FeatureValue {
	return []camctl.FeatureValue{
		{
			FeatureInfo: gxi.FeatureInfo{Name: "ExposureTime", Kind: gxi.KindFloat, Implemented: true, Readable: true, Writable: true, Unit: "us"},
			Value:       gxi.FloatValue(15000),
		},
	}
}

func TestAPI_NoSession(t *testing.T) {
	s := NewServer(0, nil)

	for _, path := range []string{"/api/device", "/api/features"} {
		resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != 503 {
			t.Errorf("GET %s: expected 503, got %d", path, resp.StatusCode)
		}
	}

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	var st StatusResponse
	json.NewDecoder(resp.Body).Decode(&st)
	if st.Session != nil {
		t.Errorf("Expected no session, got %+v", st.Session)
	}
	if st.Frames.Name != "frames" || st.Events.Name != "events" {
		t.Errorf("Unexpected hub stats %+v %+v", st.Frames, st.Events)
	}
}

func TestAPI_WithSession(t *testing.T) {
	s := NewServer(0, nil)
	src := &fakeSource{}
	s.SetSource(src)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	var st StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Decode status: %v", err)
	}
	if st.Session == nil || st.Session.Frames != 12 || st.Session.Mode != camctl.ModeActive {
		t.Errorf("Unexpected session %+v", st.Session)
	}

	resp, _ = s.App().Test(httptest.NewRequest("GET", "/api/device", nil))
	var info gxi.DeviceInfo
	json.NewDecoder(resp.Body).Decode(&info)
	if info.SerialNumber != "KJ0230040001" {
		t.Errorf("Unexpected device %+v", info)
	}

	resp, _ = s.App().Test(httptest.NewRequest("GET", "/api/features", nil))
	var features []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&features); err != nil {
		t.Fatalf("Decode features: %v", err)
	}
	if len(features) != 1 || features[0]["name"] != "ExposureTime" || features[0]["value"] != 15000.0 {
		t.Errorf("Unexpected features %v", features)
	}

	src.closed = true
	resp, _ = s.App().Test(httptest.NewRequest("GET", "/api/features", nil))
	if resp.StatusCode != 410 {
		t.Errorf("Expected 410 for closed device, got %d", resp.StatusCode)
	}
}

func TestIndex(t *testing.T) {
	s := NewServer(0, nil)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || len(body) == 0 {
		t.Errorf("Unexpected index response %d (%d bytes)", resp.StatusCode, len(body))
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	s := NewServer(0, nil)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/frames", nil))
	if err != nil {
		t.Fatalf("GET /ws/frames: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("Expected 426, got %d", resp.StatusCode)
	}
}

func TestWebSocket_Frames(t *testing.T) {
	s := NewServer(18091, nil)
	s.StartAsync()
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18091/ws/frames", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(time.Second)
	for s.Frames().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Frames().ClientCount() != 1 {
		t.Fatalf("Client not registered")
	}

	jpeg := []byte{0xff, 0xd8, 0xff, 0xd9}
	s.Frames().BroadcastBinary(jpeg)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if mt != websocket.BinaryMessage || len(data) != len(jpeg) {
		t.Errorf("Unexpected message type %d, %d bytes", mt, len(data))
	}
}

func TestWebSocket_Events(t *testing.T) {
	s := NewServer(18092, nil)
	s.StartAsync()
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18092/ws/events", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(time.Second)
	for s.Events().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Events().BroadcastJSON(map[string]any{"frame_id": 7})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	var ev map[string]any
	if mt != websocket.TextMessage || json.Unmarshal(data, &ev) != nil || ev["frame_id"] != 7.0 {
		t.Errorf("Unexpected event %d %s", mt, data)
	}
}
