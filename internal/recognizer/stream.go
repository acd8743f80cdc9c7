package recognizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"parley/internal/domain"
)

// Stream wraps one active recognition websocket lifecycle. Events carries
// partial and final transcript events; the channel closes once the stream
// terminates and Wait reports any terminal error.
type Stream struct {
	conn *websocket.Conn

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

// SendAudio queues one chunk of PCM audio for the recognition service.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	// Hold the read lock across the send so CloseSend cannot close the
	// audio channel while a chunk is in flight.
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("recognition stream closed")
	}
}

// CloseSend marks the audio side finished so the service can finalize.
func (s *Stream) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

// Events returns transcript events until the stream terminates.
func (s *Stream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

// Wait blocks until the stream terminates and returns its terminal error.
func (s *Stream) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close tears the stream down and reports the terminal error, if any.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *Stream) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) writeLoop() {
	defer s.wg.Done()

	// Keep draining after a write error so senders never back up on a
	// full channel.
	failed := false
	for chunk := range s.audio {
		if failed {
			continue
		}
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("send audio: %w", err))
			failed = true
		}
	}
	if failed {
		return
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("close audio stream: %w", err))
	}
}

func (s *Stream) readLoop() {
	defer s.wg.Done()
	// Whatever ends the read side must also release the write side, or a
	// still-feeding sender would keep the audio channel open and the stream
	// alive forever.
	defer func() { _ = s.CloseSend() }()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("read recognizer event: %w", err))
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "recognizer returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		// The service reports utterance end after trailing silence; one
		// utterance per stream, so the session is finished either way.
		if strings.EqualFold(response.Type, "UtteranceEnd") {
			return
		}

		transcript := strings.TrimSpace(response.transcript())
		if transcript == "" {
			continue
		}

		if response.IsFinal || response.SpeechFinal {
			s.emit(domain.TranscriptEvent{Kind: domain.EventFinal, Text: transcript})
			if response.SpeechFinal {
				return
			}
			continue
		}

		s.emit(domain.TranscriptEvent{Kind: domain.EventPartial, Text: transcript})
	}
}

func (s *Stream) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// transcript extracts the first alternative; the stream requests exactly one.
func (r listenResponse) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return r.Channel.Alternatives[0].Transcript
}
