// Package protocol defines the outbound OSC payload and the dashboard
// WebSocket messages for go-jellyfish.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	TypeSlots  MessageType = "slots"  // Slot snapshot for one frame
	TypeStatus MessageType = "status" // Pipeline counters
	TypeFrame  MessageType = "frame"  // Camera frame metadata
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// SlotState is the dashboard view of one slot
type SlotState struct {
	Index     int     `json:"index"`
	Active    bool    `json:"active"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"` // Depth proxy, -size
	Size      float64 `json:"size"`
	Energy    float64 `json:"energy"`
	MissCount int     `json:"miss_count"`
}

// SlotsData is a full slot snapshot
type SlotsData struct {
	Frame uint64      `json:"frame"`
	Slots []SlotState `json:"slots"`
}

// StatusData contains pipeline counters
type StatusData struct {
	Session      string  `json:"session"`
	Source       string  `json:"source"`
	Destination  string  `json:"destination"`
	Frames       uint64  `json:"frames"`
	Sent         uint64  `json:"sent"`
	Throttled    uint64  `json:"throttled"`
	ReadErrors   uint64  `json:"read_errors"`
	DetectErrors uint64  `json:"detect_errors"`
	SendErrors   uint64  `json:"send_errors"`
	Active       int     `json:"active"`
	FPS          float64 `json:"fps"`
	UptimeSec    float64 `json:"uptime_sec"`
}

// FrameData describes a camera frame sent on the binary channel
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	FrameID uint64 `json:"frame_id,omitempty"`
}
