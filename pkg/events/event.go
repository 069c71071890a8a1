// Package events publishes one record per captured frame to MQTT and to
// the preview's event stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/teslashibe/go-daheng/pkg/sink"
)

// FrameEvent describes one delivered frame.
type FrameEvent struct {
	SessionID   string    `json:"session_id" msgpack:"session_id"`
	Serial      string    `json:"serial" msgpack:"serial"`
	Model       string    `json:"model" msgpack:"model"`
	Mode        string    `json:"mode" msgpack:"mode"`
	FrameID     uint64    `json:"frame_id" msgpack:"frame_id"`
	Width       int       `json:"width" msgpack:"width"`
	Height      int       `json:"height" msgpack:"height"`
	PixelFormat string    `json:"pixel_format" msgpack:"pixel_format"`
	Status      string    `json:"status" msgpack:"status"`
	Timestamp   uint64    `json:"timestamp" msgpack:"timestamp"`
	Received    time.Time `json:"received" msgpack:"received"`
}

// FromFrame builds the event for f. f.Raw must be set.
func FromFrame(f sink.Frame) FrameEvent {
	ev := FrameEvent{
		SessionID: f.SessionID,
		Serial:    f.Device.SerialNumber,
		Model:     f.Device.ModelName,
		Mode:      f.Mode,
	}
	if r := f.Raw; r != nil {
		ev.FrameID = r.FrameID
		ev.Width = r.Width
		ev.Height = r.Height
		ev.PixelFormat = r.PixelFormat.String()
		ev.Status = r.Status.String()
		ev.Timestamp = r.Timestamp
		ev.Received = r.Received
	}
	return ev
}

// Topic expands {serial} in template.
func Topic(template, serial string) string {
	if serial == "" {
		serial = "unknown"
	}
	return strings.ReplaceAll(template, "{serial}", serial)
}

// Codec serialises events.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return "msgpack" }

// JSON and Msgpack are the supported codecs.
var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecByName returns the codec called name ("json" or "msgpack").
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// Publisher delivers frame events.
type Publisher interface {
	Publish(ctx context.Context, ev FrameEvent) error
	Close() error
}

type nop struct{}

func (nop) Publish(ctx context.Context, ev FrameEvent) error { return nil }
func (nop) Close() error                                     { return nil }

// Nop returns a publisher that drops every event.
func Nop() Publisher { return nop{} }
