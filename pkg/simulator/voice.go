package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// utterances rotate through the scripted voice turns so repeated runs look
// like a real conversation.
var utterances = []string{
	"what time is it",
	"remind me to water the plants",
	"what did we talk about yesterday",
	"turn the volume down",
}

// handleIntent reacts to events published by connected clients. Push to
// talk intents drive the scripted voice turn; anything else is fanned back
// out so clients can observe each other.
func (s *Server) handleIntent(msg *protocol.Message) {
	switch msg.Topic {
	case protocol.TopicVoicePTTStart:
		_ = s.events.PublishEvent(protocol.TopicVoiceStatus, protocol.VoiceStatus{
			State:          protocol.StringPtr("listening"),
			TalkModeActive: protocol.BoolPtr(true),
		})

	case protocol.TopicVoicePTTStop:
		go s.runVoiceTurn()

	default:
		s.events.Publish(msg)
	}
}

// runVoiceTurn plays out one scripted turn: the transcript lands while
// processing, the response arrives with speaking, and the module returns
// to idle after the response has been "spoken".
func (s *Server) runVoiceTurn() {
	s.turnMu.Lock()
	transcript := utterances[s.turnSeq%len(utterances)]
	s.turnSeq++
	s.turnMu.Unlock()

	_ = s.events.PublishEvent(protocol.TopicVoiceStatus, protocol.VoiceStatus{
		State:      protocol.StringPtr("processing"),
		Transcript: protocol.StringPtr(transcript),
	})

	s.pause()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reply, err := s.adapter.SendMessage(ctx, "voice", transcript)
	response := reply.Content
	if err != nil {
		log.Warn("voice turn failed", "error", err)
		response = fmt.Sprintf("sorry, something went wrong: %v", err)
	}

	_ = s.events.PublishEvent(protocol.TopicVoiceStatus, protocol.VoiceStatus{
		State:    protocol.StringPtr("speaking"),
		Response: protocol.StringPtr(response),
	})

	s.pause()

	_ = s.events.PublishEvent(protocol.TopicVoiceStatus, protocol.VoiceStatus{
		State:          protocol.StringPtr("idle"),
		TalkModeActive: protocol.BoolPtr(false),
	})
}

// pause sleeps one turn delay unless the server is shutting down.
func (s *Server) pause() {
	select {
	case <-s.stopped:
	case <-time.After(s.cfg.TurnDelay):
	}
}
