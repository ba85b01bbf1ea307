// Package audio arbitrates the platform audio line. Capture and playback both
// use it, and only one of them may hold it at a time.
package audio

import (
	"sync"

	"github.com/rs/zerolog"
)

// Owner is a component that can hold the audio line. ReleaseAudio is called
// when another owner takes over; it must stop the owner's platform activity
// before returning.
type Owner interface {
	ReleaseAudio()
	AudioOwnerName() string
}

// Session records which owner currently holds the audio line.
type Session struct {
	mu     sync.Mutex
	holder Owner
	log    zerolog.Logger
}

// NewSession creates an empty session.
func NewSession(log zerolog.Logger) *Session {
	return &Session{log: log}
}

// Acquire makes o the holder. The previous holder, if different, is released
// synchronously before Acquire returns.
func (s *Session) Acquire(o Owner) {
	s.mu.Lock()
	prev := s.holder
	s.holder = o
	s.mu.Unlock()

	if prev == nil || prev == o {
		return
	}
	s.log.Debug().
		Str("from", prev.AudioOwnerName()).
		Str("to", o.AudioOwnerName()).
		Msg("audio line handed over")
	prev.ReleaseAudio()
}

// Release clears the holder if it is still o.
func (s *Session) Release(o Owner) {
	s.mu.Lock()
	if s.holder == o {
		s.holder = nil
	}
	s.mu.Unlock()
}

// Holder returns the current holder, or nil.
func (s *Session) Holder() Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}
