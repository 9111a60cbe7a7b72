package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		topic   string
		data    interface{}
		wantErr bool
	}{
		{
			name:    "voice status event",
			msgType: TypeEvent,
			topic:   TopicVoiceStatus,
			data:    VoiceStatus{State: StringPtr("listening")},
			wantErr: false,
		},
		{
			name:    "subscribe frame",
			msgType: TypeSubscribe,
			data:    SubscribeData{Topics: []string{TopicVoiceStatus, TopicHealth}},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.topic, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if msg == nil && !tt.wantErr {
				t.Error("NewMessage() returned nil message")
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Topic != tt.topic {
				t.Errorf("NewMessage() topic = %q, want %q", msg.Topic, tt.topic)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	original := VoiceStatus{
		State:      StringPtr("speaking"),
		Response:   StringPtr("42"),
		TalkModeActive: BoolPtr(true),
	}

	msg, err := NewVoiceStatusEvent(original)
	if err != nil {
		t.Fatalf("NewVoiceStatusEvent() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeEvent || parsed.Topic != TopicVoiceStatus {
		t.Errorf("parsed frame = %s/%s, want event/%s", parsed.Type, parsed.Topic, TopicVoiceStatus)
	}

	var status VoiceStatus
	if err := parsed.ParseData(&status); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}

	if status.State == nil || *status.State != "speaking" {
		t.Errorf("state = %v, want speaking", status.State)
	}
	if status.Response == nil || *status.Response != "42" {
		t.Errorf("response = %v, want 42", status.Response)
	}
	if status.Transcript != nil {
		t.Errorf("transcript should be absent, got %q", *status.Transcript)
	}
	if status.TalkModeActive == nil || !*status.TalkModeActive {
		t.Error("talkModeActive should be true")
	}
}

func TestVoiceStatusSparseEncoding(t *testing.T) {
	// Absent fields must be omitted from the wire form entirely so that
	// receivers can tell "not present" apart from zero values.
	msg, err := NewVoiceStatusEvent(VoiceStatus{Transcript: StringPtr("hello")})
	if err != nil {
		t.Fatalf("NewVoiceStatusEvent() error = %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg.Data, &fields); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}

	if _, ok := fields["transcript"]; !ok {
		t.Error("transcript field missing from payload")
	}
	for _, key := range []string{"state", "response", "talkModeActive"} {
		if _, ok := fields[key]; ok {
			t.Errorf("field %q should be omitted from a sparse patch", key)
		}
	}
}

func TestParseMessageInvalid(t *testing.T) {
	if _, err := ParseMessage([]byte("{not json")); err == nil {
		t.Error("ParseMessage() should fail on malformed input")
	}
}

func TestPingPong(t *testing.T) {
	ping, err := NewPing()
	if err != nil {
		t.Fatalf("NewPing() error = %v", err)
	}

	var pingData PingData
	if err := ping.ParseData(&pingData); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if pingData.ID == "" {
		t.Error("ping ID should be set")
	}

	pong, err := NewPong(pingData)
	if err != nil {
		t.Fatalf("NewPong() error = %v", err)
	}

	var pongData PongData
	if err := pong.ParseData(&pongData); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if pongData.ID != pingData.ID {
		t.Errorf("pong ID = %q, want %q", pongData.ID, pingData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("latency should be non-negative, got %d", pongData.LatencyMs)
	}
}
