// Package playback speaks text through a platform speech synthesizer and
// tracks playback progress.
package playback

// Utterance is one speech request sent to the platform.
type Utterance struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Sink receives synthesis events. Every event names the utterance it belongs
// to so events from cancelled utterances can be told apart.
type Sink interface {
	OnStart(id string)
	OnEnd(id string)
	OnError(id, code string)
	OnPause(id string)
	OnResume(id string)
}

// Synthesizer is the platform speech-synthesis capability. The platform has
// a single output queue shared by every caller.
type Synthesizer interface {
	Speak(u Utterance, sink Sink) error
	Pause() error
	Resume() error
	Cancel() error
}
