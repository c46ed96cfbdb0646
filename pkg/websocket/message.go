// Package websocket provides the wire envelope and frame types exchanged
// between the gateway and a connected console client.
package websocket

import (
	"encoding/json"
	"time"
)

// Frame is the base envelope for every inbound and outbound WebSocket
// message (spec.md §4.8: "Inbound frames are JSON objects {type, payload?}").
type Frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// ImageAttachment is one inline image carried on a prompt frame.
type ImageAttachment struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Data string `json:"data"` // base64
	Size int64  `json:"size"`
}

// PromptPayload is the payload of an inbound "prompt" frame. The payload may
// arrive as a bare string or as this object; callers should attempt a plain
// string decode first and fall back to this shape.
type PromptPayload struct {
	Text   string            `json:"text"`
	Images []ImageAttachment `json:"images,omitempty"`
}

// CommandPayload is the payload of an inbound "command" frame: a raw
// slash-prefixed command string.
type CommandPayload struct {
	Text string `json:"text"`
}

// ResultPayload is the payload of an outbound "result" frame.
type ResultPayload struct {
	OK     bool   `json:"ok"`
	Output string `json:"output"`
}

// ErrorPayload is the payload of an outbound "error" frame.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// AckPayload is the payload of an outbound "ack" frame.
type AckPayload struct {
	MessageID string `json:"messageId"`
}

// DeltaPayload is the payload of an outbound "delta" frame: one increment of
// assistant output text.
type DeltaPayload struct {
	Text string `json:"text"`
}

// NewFrame builds a Frame by marshaling payload into the envelope.
func NewFrame(frameType string, payload interface{}) (*Frame, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &Frame{
		Type:      frameType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewFrameWithID builds a Frame carrying a client-correlatable id (used for
// ack/result replies to a specific prompt).
func NewFrameWithID(frameType, id string, payload interface{}) (*Frame, error) {
	f, err := NewFrame(frameType, payload)
	if err != nil {
		return nil, err
	}
	f.ID = id
	return f, nil
}

// NewErrorFrame builds an outbound "error" frame.
func NewErrorFrame(code, message string) (*Frame, error) {
	return NewFrame(FrameTypeError, ErrorPayload{Code: code, Message: message})
}

// NewResultFrame builds an outbound "result" frame.
func NewResultFrame(ok bool, output string) (*Frame, error) {
	return NewFrame(FrameTypeResult, ResultPayload{OK: ok, Output: output})
}

// ParsePayload decodes the frame's payload into v.
func (f *Frame) ParsePayload(v interface{}) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

// PromptText extracts the prompt text whether the payload was sent as a bare
// JSON string or as a PromptPayload object.
func (f *Frame) PromptText() (PromptPayload, error) {
	var asString string
	if err := json.Unmarshal(f.Payload, &asString); err == nil {
		return PromptPayload{Text: asString}, nil
	}
	var p PromptPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return PromptPayload{}, err
	}
	return p, nil
}
