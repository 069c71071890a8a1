package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/hub"
	"github.com/teslashibe/go-daheng/pkg/sink"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes instead of talking to a broker.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	hang       bool
	messages   []published
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() mqtt.Token {
	if c.hang {
		return newToken(nil, false)
	}
	if c.connectErr == nil {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	}
	return newToken(c.connectErr, true)
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	c.mu.Unlock()
	return newToken(nil, true)
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return newToken(nil, true)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return newToken(nil, true)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token { return newToken(nil, true) }

func (c *fakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func testFrame() sink.Frame {
	return sink.Frame{
		SessionID: "6f1c2a52-3f7e-4c1b-9d59-1a9b0c0d7e11",
		Mode:      "callback",
		Device:    gxi.DeviceInfo{ModelName: "MER2-503-23GC", SerialNumber: "KJ0230040001"},
		Raw: &gxi.RawImage{
			FrameID:     42,
			Timestamp:   123456,
			Width:       640,
			Height:      480,
			PixelFormat: gxi.PixelBayerRG8,
			Received:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestFromFrame(t *testing.T) {
	ev := FromFrame(testFrame())
	if ev.Serial != "KJ0230040001" || ev.FrameID != 42 || ev.Width != 640 {
		t.Errorf("Unexpected event %+v", ev)
	}
	if ev.PixelFormat != "BayerRG8" || ev.Status != "success" {
		t.Errorf("Unexpected format/status %q %q", ev.PixelFormat, ev.Status)
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("gxdemo/{serial}/frames", "KJ01"); got != "gxdemo/KJ01/frames" {
		t.Errorf("Topic = %q", got)
	}
	if got := Topic("gxdemo/{serial}/frames", ""); got != "gxdemo/unknown/frames" {
		t.Errorf("Topic without serial = %q", got)
	}
}

func TestCodecs(t *testing.T) {
	want := FromFrame(testFrame())

	for _, name := range []string{"json", "msgpack"} {
		c, err := CodecByName(name)
		if err != nil {
			t.Fatalf("CodecByName(%q): %v", name, err)
		}
		data, err := c.Marshal(want)
		if err != nil {
			t.Fatalf("%s marshal: %v", name, err)
		}
		var got FrameEvent
		if err := c.Unmarshal(data, &got); err != nil {
			t.Fatalf("%s unmarshal: %v", name, err)
		}
		if got.FrameID != want.FrameID || got.SessionID != want.SessionID || !got.Received.Equal(want.Received) {
			t.Errorf("%s: got %+v, want %+v", name, got, want)
		}
	}

	if _, err := CodecByName("xml"); err == nil {
		t.Error("Expected error for unknown codec")
	}
}

func TestMQTTPublisher(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(MQTTConfig{Broker: "localhost:1883", QoS: 1}, Msgpack, nil, WithClient(client))

	if err := p.Publish(context.Background(), FromFrame(testFrame())); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected before Connect, got %v", err)
	}

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.Publish(context.Background(), FromFrame(testFrame())); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(client.messages))
	}
	m := client.messages[0]
	if m.topic != "gxdemo/KJ0230040001/frames" || m.qos != 1 {
		t.Errorf("Unexpected publish %s qos %d", m.topic, m.qos)
	}
	var ev FrameEvent
	if err := Msgpack.Unmarshal(m.payload, &ev); err != nil || ev.FrameID != 42 {
		t.Errorf("Payload not msgpack frame event: %v %+v", err, ev)
	}

	st := p.Stats()
	if !st.Connected || st.Published != 1 || st.Errors != 1 || st.Codec != "msgpack" {
		t.Errorf("Unexpected stats %+v", st)
	}

	p.Close()
	if client.IsConnected() || p.Stats().Connected {
		t.Error("Close did not disconnect")
	}
}

func TestMQTTPublisher_ConnectErrors(t *testing.T) {
	p := NewMQTTPublisher(MQTTConfig{Broker: "localhost:1883"}, nil, nil,
		WithClient(&fakeClient{connectErr: errors.New("connection refused")}))
	if err := p.Connect(context.Background()); err == nil {
		t.Error("Expected connect error")
	}

	p = NewMQTTPublisher(MQTTConfig{Broker: "localhost:1883", ConnectTimeout: 20 * time.Millisecond}, nil, nil,
		WithClient(&fakeClient{hang: true}))
	if err := p.Connect(context.Background()); err == nil {
		t.Error("Expected connect timeout")
	}
}

func TestBrokerURL(t *testing.T) {
	if got := brokerURL("localhost:1883"); got != "tcp://localhost:1883" {
		t.Errorf("brokerURL = %q", got)
	}
	if got := brokerURL("ssl://broker:8883"); got != "ssl://broker:8883" {
		t.Errorf("brokerURL kept scheme wrong: %q", got)
	}
}

type recordPublisher struct {
	events []FrameEvent
	closed bool
}

func (r *recordPublisher) Publish(ctx context.Context, ev FrameEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordPublisher) Close() error {
	r.closed = true
	return nil
}

func TestSink(t *testing.T) {
	pub := &recordPublisher{}
	h := hub.New("events", nil)
	s := NewSink(pub, h, nil)

	if err := s.Show(context.Background(), testFrame()); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].FrameID != 42 {
		t.Errorf("Unexpected events %+v", pub.events)
	}
	if h.Stats().Dropped != 0 {
		t.Error("No broadcast expected without clients")
	}

	s.Close()
	if !pub.closed {
		t.Error("Close not propagated")
	}

	if err := NewSink(nil, nil, nil).Show(context.Background(), testFrame()); err != nil {
		t.Errorf("Nop sink failed: %v", err)
	}
}
