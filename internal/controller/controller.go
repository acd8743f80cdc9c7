// Package controller owns the voice interaction lifecycle: it holds the
// single authoritative interaction state, drives transcription sessions,
// dispatches finished transcripts to the intent service, and schedules the
// spoken reply.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"parley/internal/domain"
	"parley/internal/fsm"
	"parley/internal/listen"
)

// replyDelay postpones speaking a reply so the reply text lands on screen
// first.
const replyDelay = 300 * time.Millisecond

// User-facing error messages, one per termination reason.
const (
	msgUnsupported      = "Speech recognition is not configured. Set the recognizer endpoint and API key."
	msgNoSpeech         = "No speech detected. Please try speaking again."
	msgAudioCapture     = "No microphone found. Please check your microphone settings."
	msgPermissionDenied = "Permission denied. Please check your speech service credentials."
	msgNetwork          = "Network error. Please check your internet connection and try again."
	msgOther            = "Speech recognition failed. Please try again."

	// spokenApology is the fixed phrase played when dispatch fails.
	spokenApology = "I'm sorry, I encountered an error. Please check that the intent service is running."
)

// ErrClosed reports a command issued after Close.
var ErrClosed = errors.New("controller is closed")

// Session is one in-flight transcription attempt.
type Session interface {
	Events() <-chan domain.TranscriptEvent
	Stop()
}

// SessionFactory starts a new transcription attempt.
type SessionFactory interface {
	Start(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

func (f SessionFactoryFunc) Start(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Dispatcher resolves one finished transcript to a reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (domain.Reply, error)
}

// Speaker plays reply text. Implementations never block the caller.
type Speaker interface {
	Say(text string)
	Cancel()
}

type noopSpeaker struct{}

func (noopSpeaker) Say(string) {}
func (noopSpeaker) Cancel()    {}

// Sink receives state change notifications for rendering. Calls arrive from
// controller goroutines, never under the controller lock.
type Sink interface {
	StateChanged(state fsm.State)
	TranscriptChanged(text string)
	MessageAppended(message domain.Message)
	ReplyReceived(reply domain.Reply)
	ErrorChanged(message string)
}

type noopSink struct{}

func (noopSink) StateChanged(fsm.State)         {}
func (noopSink) TranscriptChanged(string)       {}
func (noopSink) MessageAppended(domain.Message) {}
func (noopSink) ReplyReceived(domain.Reply)     {}
func (noopSink) ErrorChanged(string)            {}

// Snapshot is a point-in-time copy of the displayed interaction surface.
type Snapshot struct {
	State      fsm.State        `json:"state"`
	Transcript string           `json:"transcript"`
	Error      string           `json:"error,omitempty"`
	Messages   []domain.Message `json:"messages"`
	Queries    int              `json:"queries"`
}

// Controller coordinates sessions, dispatch, and playback behind one lock.
type Controller struct {
	logger     *slog.Logger
	sessions   SessionFactory
	dispatcher Dispatcher
	speaker    Speaker
	sink       Sink

	ctx       context.Context
	ctxCancel context.CancelFunc

	mu            sync.Mutex
	state         fsm.State
	transcript    string
	errMsg        string
	messages      []domain.Message
	queries       int
	lastMessageID int64

	session   Session
	seq       int
	opening   bool
	closed    bool
	playTimer *time.Timer
}

// NewController constructs a controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	sessions SessionFactory,
	dispatcher Dispatcher,
	speaker Speaker,
	sink Sink,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if speaker == nil {
		speaker = noopSpeaker{}
	}
	if sink == nil {
		sink = noopSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		logger:     logger,
		sessions:   sessions,
		dispatcher: dispatcher,
		speaker:    speaker,
		sink:       sink,
		ctx:        ctx,
		ctxCancel:  cancel,
		state:      fsm.StateIdle,
	}
}

// State returns the current interaction state.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the full displayed surface.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:      c.state,
		Transcript: c.transcript,
		Error:      c.errMsg,
		Messages:   append([]domain.Message(nil), c.messages...),
		Queries:    c.queries,
	}
}

// StartListening begins a new transcription attempt. It fails when the
// controller is not idle or when the environment offers no recognition
// capability.
func (c *Controller) StartListening() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != fsm.StateIdle || c.opening {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start listening from state %s", state)
	}
	c.opening = true
	c.mu.Unlock()

	session, err := c.sessions.Start(c.ctx)
	if err != nil {
		c.startFailed(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.Stop()
		return ErrClosed
	}
	next, terr := fsm.Transition(c.state, fsm.EventStart)
	if terr != nil {
		c.opening = false
		c.mu.Unlock()
		session.Stop()
		return terr
	}
	c.opening = false
	c.state = next
	c.transcript = ""
	c.errMsg = ""
	c.session = session
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	c.logger.Info("listening attempt started", "seq", seq)
	c.sink.StateChanged(fsm.StateListening)
	c.sink.TranscriptChanged("")
	c.sink.ErrorChanged("")

	go c.consume(seq, session)
	return nil
}

// startFailed records a session startup failure and surfaces its message.
func (c *Controller) startFailed(err error) {
	var message string
	switch {
	case errors.Is(err, domain.ErrUnsupported):
		message = msgUnsupported
	default:
		message = reasonMessage(listen.Classify(err))
	}

	c.mu.Lock()
	c.opening = false
	c.errMsg = message
	c.mu.Unlock()

	c.logger.Error("listening attempt failed to start", "error", err)
	c.sink.ErrorChanged(message)
}

// StopListening ends the active attempt. Any transcript accumulated so far is
// still delivered and dispatched by the session's terminal events. Stopping
// when nothing is listening is a no-op.
func (c *Controller) StopListening() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != fsm.StateListening || c.session == nil {
		c.mu.Unlock()
		return nil
	}
	session := c.session
	c.mu.Unlock()

	session.Stop()
	return nil
}

// Toggle starts listening when idle and stops it when listening. While a
// query is processing it does nothing.
func (c *Controller) Toggle() error {
	switch c.State() {
	case fsm.StateListening:
		return c.StopListening()
	case fsm.StateProcessing:
		return errors.New("busy processing a query")
	default:
		return c.StartListening()
	}
}

// DismissError clears the error banner.
func (c *Controller) DismissError() {
	c.mu.Lock()
	changed := c.errMsg != ""
	c.errMsg = ""
	c.mu.Unlock()

	if changed {
		c.sink.ErrorChanged("")
	}
}

// Close stops the active session, cancels pending playback, and rejects all
// further commands.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	session := c.session
	c.session = nil
	c.seq++
	timer := c.playTimer
	c.playTimer = nil
	c.mu.Unlock()

	if session != nil {
		session.Stop()
	}
	if timer != nil {
		timer.Stop()
	}
	c.speaker.Cancel()
	c.ctxCancel()
}

// consume applies one session's event stream to the controller. The seq
// guard drops anything from a superseded attempt.
func (c *Controller) consume(seq int, session Session) {
	for event := range session.Events() {
		switch event.Kind {
		case domain.EventPartial:
			c.onInterim(seq, event.Text)
		case domain.EventFinal:
			c.onFinal(seq, session, event.Text)
		case domain.EventEnded:
			c.onEnded(seq)
		case domain.EventErrored:
			c.onErrored(seq, event.Reason)
		}
	}
}

func (c *Controller) onInterim(seq int, text string) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventInterim)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.transcript = text
	c.mu.Unlock()

	c.sink.TranscriptChanged(text)
}

// onFinal hands the finished transcript to the dispatcher. Duplicate finals
// from the same attempt are dropped by the state check.
func (c *Controller) onFinal(seq int, session Session, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	if seq != c.seq || c.state != fsm.StateListening {
		c.mu.Unlock()
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventFinal)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.transcript = text
	c.session = nil
	c.queries++
	userMessage := c.appendMessageLocked(domain.Message{
		Text:   text,
		Sender: domain.SenderUser,
	})
	c.mu.Unlock()

	c.logger.Info("transcript finalized", "seq", seq, "chars", len(text))
	c.sink.TranscriptChanged(text)
	c.sink.MessageAppended(userMessage)
	c.sink.StateChanged(fsm.StateProcessing)

	session.Stop()
	go c.dispatch(seq, text)
}

func (c *Controller) onEnded(seq int) {
	c.mu.Lock()
	if seq != c.seq || c.state != fsm.StateListening {
		c.mu.Unlock()
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventSessionEnded)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.session = nil
	c.mu.Unlock()

	c.logger.Info("listening ended without dispatch", "seq", seq)
	c.sink.StateChanged(fsm.StateIdle)
}

func (c *Controller) onErrored(seq int, reason domain.Reason) {
	c.mu.Lock()
	if seq != c.seq || c.state != fsm.StateListening {
		c.mu.Unlock()
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventSessionEnded)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.session = nil

	message := reasonMessage(reason)
	c.errMsg = message
	clearedTranscript := false
	if reason == domain.ReasonNoSpeech {
		c.transcript = ""
		clearedTranscript = true
	}
	c.mu.Unlock()

	c.logger.Warn("listening errored", "seq", seq, "reason", string(reason))
	c.sink.StateChanged(fsm.StateIdle)
	if clearedTranscript {
		c.sink.TranscriptChanged("")
	}
	if message != "" {
		c.sink.ErrorChanged(message)
	}
}

// dispatch resolves one query against the intent service and reports the
// outcome. Exactly one resolution is applied per accepted final transcript.
func (c *Controller) dispatch(seq int, text string) {
	reply, err := c.dispatcher.Dispatch(c.ctx, text)
	if err != nil {
		c.resolveFailure(seq, err)
		return
	}
	c.resolveSuccess(seq, reply)
}

func (c *Controller) resolveSuccess(seq int, reply domain.Reply) {
	c.mu.Lock()
	if seq != c.seq || c.state != fsm.StateProcessing {
		c.mu.Unlock()
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventResolved)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	botMessage := c.appendMessageLocked(domain.Message{
		Text:   reply.ResponseText,
		Sender: domain.SenderBot,
		Intent: reply.Intent,
	})
	c.schedulePlaybackLocked(reply.ResponseText)
	c.mu.Unlock()

	c.logger.Info("query resolved", "seq", seq, "intent", reply.Intent)
	c.sink.ReplyReceived(reply)
	c.sink.MessageAppended(botMessage)
	c.sink.StateChanged(fsm.StateIdle)
}

func (c *Controller) resolveFailure(seq int, dispatchErr error) {
	detail := dispatchErr.Error()
	var transport *domain.TransportError
	if errors.As(dispatchErr, &transport) {
		detail = transport.Message
	}

	c.mu.Lock()
	if seq != c.seq || c.state != fsm.StateProcessing {
		c.mu.Unlock()
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventResolved)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.errMsg = detail
	botMessage := c.appendMessageLocked(domain.Message{
		Text:   fmt.Sprintf("Sorry, I encountered an error: %s. Please make sure the intent service is running.", detail),
		Sender: domain.SenderBot,
	})
	c.schedulePlaybackLocked(spokenApology)
	c.mu.Unlock()

	c.logger.Error("query dispatch failed", "seq", seq, "error", dispatchErr)
	c.sink.MessageAppended(botMessage)
	c.sink.StateChanged(fsm.StateIdle)
	c.sink.ErrorChanged(detail)
}

// appendMessageLocked stamps and stores a message. Caller holds c.mu.
func (c *Controller) appendMessageLocked(message domain.Message) domain.Message {
	id := time.Now().UnixMilli()
	if id <= c.lastMessageID {
		id = c.lastMessageID + 1
	}
	c.lastMessageID = id

	message.ID = id
	message.Timestamp = time.Now()
	c.messages = append(c.messages, message)
	return message
}

// schedulePlaybackLocked arms the delayed reply playback. Caller holds c.mu.
func (c *Controller) schedulePlaybackLocked(text string) {
	if c.playTimer != nil {
		c.playTimer.Stop()
	}
	c.playTimer = time.AfterFunc(replyDelay, func() {
		c.speaker.Say(text)
	})
}

// reasonMessage maps a termination reason to its banner text. Aborted
// attempts come from the user's own stop and show nothing.
func reasonMessage(reason domain.Reason) string {
	switch reason {
	case domain.ReasonNoSpeech:
		return msgNoSpeech
	case domain.ReasonAudioCapture:
		return msgAudioCapture
	case domain.ReasonPermissionDenied:
		return msgPermissionDenied
	case domain.ReasonNetwork:
		return msgNetwork
	case domain.ReasonAborted:
		return ""
	default:
		return msgOther
	}
}
