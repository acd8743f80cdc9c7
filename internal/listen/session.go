// Package listen runs one transcription attempt end to end: it selects an
// input device, starts audio capture, streams PCM to the recognizer, and
// reports transcript events until the attempt reaches a terminal state.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"parley/internal/capture"
	"parley/internal/domain"
	"parley/internal/recognizer"
	"parley/internal/transcript"
)

// closeGrace bounds how long a stopped session waits for the recognizer to
// acknowledge the end of audio before the connection is torn down.
const closeGrace = 3 * time.Second

// noSpeechTimeout ends an attempt during which nothing was ever recognized.
// Once the first transcript arrives the service's own utterance-end handling
// takes over and this timer is defused.
const noSpeechTimeout = 8 * time.Second

// Stream is the slice of recognizer.Stream the session drives.
type Stream interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// Source is the slice of capture.Capture the session drains.
type Source interface {
	Chunks() <-chan []byte
	Stop() error
	Device() capture.Device
}

// ErrAudio marks failures in the local audio path, as opposed to the
// recognition service or the network.
var ErrAudio = errors.New("audio capture failed")

// Factory starts sessions against one configured recognizer and input device.
type Factory struct {
	client   *recognizer.Client
	input    string
	fallback string
	logger   *slog.Logger
}

func NewFactory(client *recognizer.Client, input, fallback string, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Factory{client: client, input: input, fallback: fallback, logger: logger}
}

// Start begins a new listening attempt. Each returned Session is single use.
func (f *Factory) Start(ctx context.Context) (*Session, error) {
	if err := f.client.Available(); err != nil {
		return nil, err
	}

	selection, err := capture.SelectDevice(ctx, f.input, f.fallback)
	if err != nil {
		return nil, fmt.Errorf("select input device: %w: %w", ErrAudio, err)
	}
	if selection.Warning != "" {
		f.logger.Warn(selection.Warning, "device", selection.Device.Description)
	}

	stream, err := f.client.Start(ctx)
	if err != nil {
		return nil, err
	}

	source, err := capture.StartCapture(ctx, selection.Device)
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start audio capture: %w: %w", ErrAudio, err)
	}

	f.logger.Info("listening started",
		"device", selection.Device.Description,
		"fallback", selection.Fallback)

	return newSession(stream, source, f.logger, noSpeechTimeout), nil
}

// Session is one listening attempt. It emits interim transcript updates
// followed by exactly one terminal event (final text and ended, or errored),
// then closes its event channel. Sessions are never reused.
type Session struct {
	stream Stream
	source Source
	logger *slog.Logger

	events chan domain.TranscriptEvent

	stopOnce sync.Once
	stopped  atomic.Bool

	noSpeech time.Duration
	silenced atomic.Bool

	finals []string
}

func newSession(stream Stream, source Source, logger *slog.Logger, noSpeech time.Duration) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		stream:   stream,
		source:   source,
		logger:   logger,
		events:   make(chan domain.TranscriptEvent, 16),
		noSpeech: noSpeech,
	}
	go s.pump()
	go s.run()
	return s
}

// Events streams transcript updates. The channel closes after the terminal
// event has been delivered.
func (s *Session) Events() <-chan domain.TranscriptEvent {
	return s.events
}

// Stop ends the attempt from the user's side. The accumulated transcript, if
// any, is still delivered as the final result. Stop is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		_ = s.source.Stop()

		// If the service never acknowledges the end of audio, force the
		// stream down so the terminal event still fires.
		time.AfterFunc(closeGrace, func() {
			_ = s.stream.Close()
		})
	})
}

// pump forwards captured PCM to the recognizer until the source drains, then
// signals the end of audio.
func (s *Session) pump() {
	for chunk := range s.source.Chunks() {
		if err := s.stream.SendAudio(chunk); err != nil {
			break
		}
	}
	_ = s.stream.CloseSend()
}

func (s *Session) run() {
	defer close(s.events)

	// The service cannot report an utterance end when no utterance ever
	// started, so a fully silent microphone is cut off locally.
	var silence *time.Timer
	if s.noSpeech > 0 {
		silence = time.AfterFunc(s.noSpeech, func() {
			s.silenced.Store(true)
			_ = s.source.Stop()
			_ = s.stream.Close()
		})
	}

	for event := range s.stream.Events() {
		if silence != nil {
			silence.Stop()
			silence = nil
		}
		switch event.Kind {
		case domain.EventPartial:
			if text := transcript.Assemble(s.finals, event.Text); text != "" {
				s.events <- domain.TranscriptEvent{Kind: domain.EventPartial, Text: text}
			}
		case domain.EventFinal:
			s.finals = append(s.finals, event.Text)
			if text := transcript.Assemble(s.finals, ""); text != "" {
				s.events <- domain.TranscriptEvent{Kind: domain.EventPartial, Text: text}
			}
		}
	}

	if silence != nil {
		silence.Stop()
	}

	streamErr := s.stream.Wait()
	_ = s.source.Stop()

	final := transcript.Assemble(s.finals, "")

	switch {
	case s.stopped.Load():
		if final != "" {
			s.events <- domain.TranscriptEvent{Kind: domain.EventFinal, Text: final}
		}
		s.events <- domain.TranscriptEvent{Kind: domain.EventEnded}
		s.logger.Info("listening stopped", "transcript_len", len(final))
	case s.silenced.Load() && final == "":
		s.logger.Info("no speech recognized before timeout")
		s.events <- domain.TranscriptEvent{Kind: domain.EventErrored, Reason: domain.ReasonNoSpeech}
	case streamErr != nil:
		reason := Classify(streamErr)
		s.logger.Error("listening failed", "reason", string(reason), "error", streamErr)
		s.events <- domain.TranscriptEvent{Kind: domain.EventErrored, Reason: reason}
	case final == "":
		s.logger.Info("listening ended without speech")
		s.events <- domain.TranscriptEvent{Kind: domain.EventErrored, Reason: domain.ReasonNoSpeech}
	default:
		s.events <- domain.TranscriptEvent{Kind: domain.EventFinal, Text: final}
		s.events <- domain.TranscriptEvent{Kind: domain.EventEnded}
		s.logger.Info("listening ended", "transcript_len", len(final))
	}
}

// Classify maps a session or startup error to the reason surfaced to the
// user. Unrecognized failures read as network problems, since the recognizer
// is a remote service.
func Classify(err error) domain.Reason {
	switch {
	case err == nil:
		return domain.ReasonOther
	case errors.Is(err, context.Canceled):
		return domain.ReasonAborted
	case errors.Is(err, recognizer.ErrPermission):
		return domain.ReasonPermissionDenied
	case errors.Is(err, ErrAudio):
		return domain.ReasonAudioCapture
	default:
		return domain.ReasonNetwork
	}
}
