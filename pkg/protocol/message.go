// Package protocol defines the wire types for the clawft gateway event
// channel. This package is shared between the client-side event bus, the
// embedded backend's in-process dispatch, and the simulated gateway daemon.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of frame on the event channel.
type MessageType string

const (
	// TypeEvent carries a topic-addressed event payload.
	TypeEvent MessageType = "event"

	// TypeSubscribe asks the gateway to start delivering the listed topics.
	TypeSubscribe MessageType = "subscribe"

	// TypeUnsubscribe asks the gateway to stop delivering the listed topics.
	TypeUnsubscribe MessageType = "unsubscribe"

	// TypePing and TypePong are channel health checks.
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Topic names for the event streams multiplexed over one channel.
const (
	// TopicVoiceStatus carries VoiceStatus sparse patches from the backend.
	TopicVoiceStatus = "voice:status"

	// TopicVoicePTTStart and TopicVoicePTTStop are fire-and-forget intent
	// notifications with no payload, sent when a local push-to-talk
	// control is pressed or released.
	TopicVoicePTTStart = "voice:push_to_talk_start"
	TopicVoicePTTStop  = "voice:push_to_talk_stop"

	// TopicChatMessage carries completed chat messages for a session.
	TopicChatMessage = "chat:message"

	// TopicHealth carries periodic gateway health reports.
	TopicHealth = "health"
)

// Message is the base wrapper for all event-channel frames.
// Topic is set only for TypeEvent frames.
type Message struct {
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, topic string, data interface{}) (*Message, error) {
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
		Topic:     topic,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Event payloads
// =============================================================================

// VoiceStatus is the payload for TopicVoiceStatus. All fields are optional:
// a receiver applies only the fields present and leaves the rest of its
// local state untouched (sparse-patch semantics, not full-replace).
type VoiceStatus struct {
	State          *string `json:"state,omitempty"`
	Transcript     *string `json:"transcript,omitempty"`
	Response       *string `json:"response,omitempty"`
	TalkModeActive *bool   `json:"talkModeActive,omitempty"`
}

// ChatMessageEvent is the payload for TopicChatMessage.
type ChatMessageEvent struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"` // "user" or "agent"
	Content   string `json:"content"`
}

// HealthData is the payload for TopicHealth.
type HealthData struct {
	Status    string `json:"status"` // "ok" or "degraded"
	UptimeSec int64  `json:"uptime_sec"`
	Clients   int    `json:"clients,omitempty"`
}

// SubscribeData is the payload for TypeSubscribe and TypeUnsubscribe frames.
type SubscribeData struct {
	Topics []string `json:"topics"`
}

// PingData contains ping information.
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains the pong response.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
