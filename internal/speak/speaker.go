package speak

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// settleDelay is the pause after interrupting a previous utterance before the
// next one starts. It keeps back-to-back replies from clipping each other.
const settleDelay = 100 * time.Millisecond

// Speaker speaks reply text, one utterance at a time. A new Say interrupts
// whatever is currently playing. Failures are logged and swallowed; speech is
// a best-effort companion to the on-screen reply, never a gate on it.
type Speaker struct {
	synth  Synthesizer
	player Player
	logger *slog.Logger
	settle time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	prevDone chan struct{}
}

// NewSpeaker returns a speaker. A nil synthesizer or player disables speech
// entirely; Say becomes a no-op.
func NewSpeaker(synth Synthesizer, player Player, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Speaker{
		synth:  synth,
		player: player,
		logger: logger,
		settle: settleDelay,
	}
}

// Say schedules text to be spoken, interrupting any utterance in progress.
// It returns immediately.
func (s *Speaker) Say(text string) {
	if s.synth == nil || s.player == nil {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	prev := s.prevDone

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.prevDone = done
	s.mu.Unlock()

	go s.speak(ctx, prev, done, text)
}

// Cancel interrupts the current utterance, if any.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Speaker) speak(ctx context.Context, prev, done chan struct{}, text string) {
	defer close(done)

	// Wait for the interrupted utterance to fully wind down, then settle
	// briefly before speaking.
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	pcm, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("speech synthesis failed", "error", err)
		}
		return
	}

	if err := s.player.Play(ctx, pcm); err != nil && ctx.Err() == nil {
		s.logger.Error("speech playback failed", "error", err)
	}
}
