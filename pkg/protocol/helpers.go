package protocol

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewEvent creates an event frame for the given topic.
func NewEvent(topic string, payload interface{}) (*Message, error) {
	return NewMessage(TypeEvent, topic, payload)
}

// NewVoiceStatusEvent creates a voice:status event carrying a sparse patch.
func NewVoiceStatusEvent(status VoiceStatus) (*Message, error) {
	return NewMessage(TypeEvent, TopicVoiceStatus, status)
}

// NewSubscribe creates a subscribe control frame.
func NewSubscribe(topics []string) (*Message, error) {
	return NewMessage(TypeSubscribe, "", SubscribeData{Topics: topics})
}

// NewUnsubscribe creates an unsubscribe control frame.
func NewUnsubscribe(topics []string) (*Message, error) {
	return NewMessage(TypeUnsubscribe, "", SubscribeData{Topics: topics})
}

// NewPing creates a ping frame with a fresh ID.
func NewPing() (*Message, error) {
	return NewMessage(TypePing, "", PingData{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPong creates a pong frame answering the given ping.
func NewPong(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, "", PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// =============================================================================
// Sparse-patch field helpers
// =============================================================================

// StringPtr returns a pointer to s, for building sparse VoiceStatus patches.
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b, for building sparse VoiceStatus patches.
func BoolPtr(b bool) *bool { return &b }
