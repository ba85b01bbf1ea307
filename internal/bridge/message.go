// Package bridge connects a browser tab's Web Speech API to the pipeline over
// a WebSocket. The tab is the platform: it runs recognition and synthesis and
// reports events back.
package bridge

import (
	"github.com/snarg/voxguide/internal/capture"
	"github.com/snarg/voxguide/internal/pipeline"
	"github.com/snarg/voxguide/internal/playback"
)

// Message types, client to server.
const (
	TypeHello             = "hello"
	TypeRecognitionStart  = "recognition.start"
	TypeRecognitionResult = "recognition.result"
	TypeRecognitionError  = "recognition.error"
	TypeRecognitionEnd    = "recognition.end"
	TypeSynthesisStart    = "synthesis.start"
	TypeSynthesisEnd      = "synthesis.end"
	TypeSynthesisError    = "synthesis.error"
	TypeSynthesisPause    = "synthesis.pause"
	TypeSynthesisResume   = "synthesis.resume"
)

// Message types, server to client. recognition.start and the synthesis
// pause/resume types are shared with the client direction.
const (
	TypeWelcome          = "welcome"
	TypeRecognitionStop  = "recognition.stop"
	TypeRecognitionAbort = "recognition.abort"
	TypeSynthesisSpeak   = "synthesis.speak"
	TypeSynthesisCancel  = "synthesis.cancel"
)

// Message is the single JSON envelope used in both directions. Only the
// fields relevant to Type are set.
type Message struct {
	Type         string                 `json:"type"`
	ClientID     string                 `json:"client_id,omitempty"`
	Capabilities *pipeline.Capabilities `json:"capabilities,omitempty"`
	Options      *capture.Options       `json:"options,omitempty"`
	Session      string                 `json:"session,omitempty"`
	ResultIndex  int                    `json:"result_index,omitempty"`
	Results      []capture.Result       `json:"results,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Utterance    *playback.Utterance    `json:"utterance,omitempty"`
	UtteranceID  string                 `json:"utterance_id,omitempty"`
}
