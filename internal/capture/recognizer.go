// Package capture wraps a platform speech recognizer and maintains the
// finalized and interim transcript for one source language.
package capture

// Options configure a recognition session on the platform.
type Options struct {
	// Session identifies this recognition session; the platform echoes it on
	// every event.
	Session        string `json:"session"`
	Lang           string `json:"lang"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// Result is one recognition alternative as reported by the platform.
type Result struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// Sink receives recognition events from the platform. Every event names the
// session it belongs to so events from aborted sessions can be told apart.
type Sink interface {
	// OnStart is called once the platform confirms recognition is running.
	OnStart(session string)

	// OnResult delivers the platform result list; only results from
	// resultIndex onward are new.
	OnResult(session string, resultIndex int, results []Result)

	// OnError reports a platform error token such as "not-allowed",
	// "no-speech" or "network".
	OnError(session, code string)

	// OnEnd is called when the platform session has ended.
	OnEnd(session string)
}

// Recognizer is the platform speech-recognition capability.
type Recognizer interface {
	// Start asks the platform to begin recognition. Events are delivered to
	// sink asynchronously.
	Start(opts Options, sink Sink) error

	// Stop requests a graceful stop; the platform answers with OnEnd.
	Stop() error

	// Abort stops immediately and discards pending results.
	Abort() error
}
