package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/capture"
	"github.com/snarg/voxguide/internal/playback"
)

// ErrClosed is returned when sending to a client that has gone away.
var ErrClosed = errors.New("bridge connection closed")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
)

// Conn is one attached browser tab. It implements capture.Recognizer and
// playback.Synthesizer by forwarding commands to the tab.
type Conn struct {
	id  string
	ws  *websocket.Conn
	log zerolog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	recSink    capture.Sink
	synthSinks map[string]playback.Sink
	closed     bool
	done       chan struct{}
}

func newConn(id string, ws *websocket.Conn, log zerolog.Logger) *Conn {
	return &Conn{
		id:         id,
		ws:         ws,
		log:        log,
		synthSinks: make(map[string]playback.Sink),
		done:       make(chan struct{}),
	}
}

// ID returns the client id assigned at upgrade.
func (c *Conn) ID() string { return c.id }

func (c *Conn) Start(opts capture.Options, sink capture.Sink) error {
	c.mu.Lock()
	c.recSink = sink
	c.mu.Unlock()
	return c.send(Message{Type: TypeRecognitionStart, Options: &opts})
}

func (c *Conn) Stop() error  { return c.send(Message{Type: TypeRecognitionStop}) }
func (c *Conn) Abort() error { return c.send(Message{Type: TypeRecognitionAbort}) }

func (c *Conn) Speak(u playback.Utterance, sink playback.Sink) error {
	c.mu.Lock()
	c.synthSinks[u.ID] = sink
	c.mu.Unlock()
	if err := c.send(Message{Type: TypeSynthesisSpeak, Utterance: &u}); err != nil {
		c.mu.Lock()
		delete(c.synthSinks, u.ID)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Conn) Pause() error  { return c.send(Message{Type: TypeSynthesisPause}) }
func (c *Conn) Resume() error { return c.send(Message{Type: TypeSynthesisResume}) }
func (c *Conn) Cancel() error { return c.send(Message{Type: TypeSynthesisCancel}) }

func (c *Conn) send(m Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(m); err != nil {
		return fmt.Errorf("write %s: %w", m.Type, err)
	}
	return nil
}

// readHello waits for the first message, which must be a hello.
func (c *Conn) readHello(timeout time.Duration) (Message, error) {
	c.ws.SetReadDeadline(time.Now().Add(timeout))
	var m Message
	if err := c.ws.ReadJSON(&m); err != nil {
		return m, fmt.Errorf("read hello: %w", err)
	}
	if m.Type != TypeHello || m.Capabilities == nil {
		return m, fmt.Errorf("expected hello with capabilities, got %q", m.Type)
	}
	return m, nil
}

// readLoop dispatches platform events until the socket fails.
func (c *Conn) readLoop() {
	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var m Message
		if err := c.ws.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("bridge read failed")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(m)
	}
}

func (c *Conn) dispatch(m Message) {
	switch m.Type {
	case TypeRecognitionStart, TypeRecognitionResult, TypeRecognitionError, TypeRecognitionEnd:
		c.mu.Lock()
		sink := c.recSink
		c.mu.Unlock()
		if sink == nil {
			return
		}
		switch m.Type {
		case TypeRecognitionStart:
			sink.OnStart(m.Session)
		case TypeRecognitionResult:
			sink.OnResult(m.Session, m.ResultIndex, m.Results)
		case TypeRecognitionError:
			sink.OnError(m.Session, m.Error)
		case TypeRecognitionEnd:
			sink.OnEnd(m.Session)
		}

	case TypeSynthesisStart, TypeSynthesisEnd, TypeSynthesisError, TypeSynthesisPause, TypeSynthesisResume:
		c.mu.Lock()
		sink := c.synthSinks[m.UtteranceID]
		if m.Type == TypeSynthesisEnd || m.Type == TypeSynthesisError {
			delete(c.synthSinks, m.UtteranceID)
		}
		c.mu.Unlock()
		if sink == nil {
			return
		}
		switch m.Type {
		case TypeSynthesisStart:
			sink.OnStart(m.UtteranceID)
		case TypeSynthesisEnd:
			sink.OnEnd(m.UtteranceID)
		case TypeSynthesisError:
			sink.OnError(m.UtteranceID, m.Error)
		case TypeSynthesisPause:
			sink.OnPause(m.UtteranceID)
		case TypeSynthesisResume:
			sink.OnResume(m.UtteranceID)
		}

	case TypeHello:
		c.log.Debug().Msg("duplicate hello ignored")

	default:
		c.log.Debug().Str("type", m.Type).Msg("unknown bridge message")
	}
}

// pingLoop keeps intermediaries from idling the socket out.
func (c *Conn) pingLoop() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close sends a close frame with reason and closes the socket. Safe to call
// more than once.
func (c *Conn) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	close(c.done)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.ws.Close()
}
