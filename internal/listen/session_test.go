package listen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parley/internal/capture"
	"parley/internal/domain"
	"parley/internal/recognizer"
)

type fakeStream struct {
	events chan domain.TranscriptEvent
	wait   error

	mu        sync.Mutex
	sent      [][]byte
	sendErr   error
	closeSend bool

	// onCloseSend, when set, runs once after CloseSend. Tests use it to
	// simulate the service acknowledging the end of audio.
	onCloseSend func()
	closeOnce   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan domain.TranscriptEvent, 16)}
}

func (f *fakeStream) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	f.closeSend = true
	hook := f.onCloseSend
	f.mu.Unlock()
	if hook != nil {
		f.closeOnce.Do(hook)
	}
	return nil
}

func (f *fakeStream) Events() <-chan domain.TranscriptEvent { return f.events }
func (f *fakeStream) Wait() error                           { return f.wait }

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeStream) sentChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeStream) closeSendCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSend
}

type fakeSource struct {
	chunks   chan []byte
	stopOnce sync.Once
	stops    int
	mu       sync.Mutex
}

func newFakeSource(chunks ...[]byte) *fakeSource {
	f := &fakeSource{chunks: make(chan []byte, 32)}
	for _, c := range chunks {
		f.chunks <- c
	}
	return f
}

func (f *fakeSource) Chunks() <-chan []byte { return f.chunks }

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.chunks) })
	return nil
}

func (f *fakeSource) Device() capture.Device {
	return capture.Device{ID: "fake", Description: "Fake Microphone"}
}

func (f *fakeSource) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// collect drains the session's event channel until it closes.
func collect(t *testing.T, s *Session) []domain.TranscriptEvent {
	t.Helper()

	var got []domain.TranscriptEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-s.Events():
			if !ok {
				return got
			}
			got = append(got, event)
		case <-timeout:
			t.Fatalf("session never terminated; events so far: %v", got)
		}
	}
}

func TestSessionHappyPath(t *testing.T) {
	stream := newFakeStream()
	source := newFakeSource([]byte{0x01}, []byte{0x02})
	session := newSession(stream, source, nil, noSpeechTimeout)

	stream.events <- domain.TranscriptEvent{Kind: domain.EventPartial, Text: "check my"}
	stream.events <- domain.TranscriptEvent{Kind: domain.EventFinal, Text: "check my balance"}
	require.NoError(t, stream.Close())

	got := collect(t, session)
	require.Equal(t, []domain.TranscriptEvent{
		{Kind: domain.EventPartial, Text: "check my"},
		{Kind: domain.EventPartial, Text: "check my balance"},
		{Kind: domain.EventFinal, Text: "check my balance"},
		{Kind: domain.EventEnded},
	}, got)

	require.Eventually(t, func() bool {
		return len(stream.sentChunks()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, [][]byte{{0x01}, {0x02}}, stream.sentChunks())
	require.Eventually(t, stream.closeSendCalled, time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, source.stopCount(), 1)
}

func TestSessionMergesContinuationSegments(t *testing.T) {
	stream := newFakeStream()
	source := newFakeSource()
	session := newSession(stream, source, nil, noSpeechTimeout)

	stream.events <- domain.TranscriptEvent{Kind: domain.EventFinal, Text: "what are your"}
	stream.events <- domain.TranscriptEvent{Kind: domain.EventFinal, Text: "what are your hours"}
	require.NoError(t, stream.Close())

	got := collect(t, session)
	require.Equal(t, domain.EventFinal, got[len(got)-2].Kind)
	require.Equal(t, "what are your hours", got[len(got)-2].Text)
	require.Equal(t, domain.EventEnded, got[len(got)-1].Kind)
}

func TestSessionStopWithoutSpeech(t *testing.T) {
	stream := newFakeStream()
	stream.onCloseSend = func() { close(stream.events) }
	source := newFakeSource()
	session := newSession(stream, source, nil, noSpeechTimeout)

	session.Stop()
	session.Stop()

	got := collect(t, session)
	require.Equal(t, []domain.TranscriptEvent{{Kind: domain.EventEnded}}, got)
}

func TestSessionStopDeliversAccumulatedText(t *testing.T) {
	stream := newFakeStream()
	stream.onCloseSend = func() { close(stream.events) }
	source := newFakeSource()
	session := newSession(stream, source, nil, noSpeechTimeout)

	stream.events <- domain.TranscriptEvent{Kind: domain.EventFinal, Text: "hello there"}
	session.Stop()

	got := collect(t, session)
	require.Equal(t, domain.TranscriptEvent{Kind: domain.EventFinal, Text: "hello there"}, got[len(got)-2])
	require.Equal(t, domain.TranscriptEvent{Kind: domain.EventEnded}, got[len(got)-1])
}

func TestSessionStreamFailureReadsAsNetwork(t *testing.T) {
	stream := newFakeStream()
	stream.wait = errors.New("connection reset")
	source := newFakeSource()
	session := newSession(stream, source, nil, noSpeechTimeout)

	require.NoError(t, stream.Close())

	got := collect(t, session)
	require.Equal(t, []domain.TranscriptEvent{
		{Kind: domain.EventErrored, Reason: domain.ReasonNetwork},
	}, got)
	require.GreaterOrEqual(t, source.stopCount(), 1)
}

func TestSessionNaturalEndWithoutSpeech(t *testing.T) {
	stream := newFakeStream()
	source := newFakeSource()
	session := newSession(stream, source, nil, noSpeechTimeout)

	require.NoError(t, stream.Close())

	got := collect(t, session)
	require.Equal(t, []domain.TranscriptEvent{
		{Kind: domain.EventErrored, Reason: domain.ReasonNoSpeech},
	}, got)
}

func TestSessionSilentMicrophoneTimesOutAsNoSpeech(t *testing.T) {
	stream := newFakeStream()
	source := newFakeSource()
	session := newSession(stream, source, nil, 50*time.Millisecond)

	// No transcript events and no user stop: the session must cut itself
	// off rather than wait on the service forever.
	got := collect(t, session)
	require.Equal(t, []domain.TranscriptEvent{
		{Kind: domain.EventErrored, Reason: domain.ReasonNoSpeech},
	}, got)
	require.GreaterOrEqual(t, source.stopCount(), 1)
}

func TestSessionRecognizedSpeechDefusesSilenceTimer(t *testing.T) {
	stream := newFakeStream()
	source := newFakeSource()
	session := newSession(stream, source, nil, 100*time.Millisecond)

	stream.events <- domain.TranscriptEvent{Kind: domain.EventFinal, Text: "hello there"}

	time.Sleep(300 * time.Millisecond)
	require.Zero(t, source.stopCount())
	require.NoError(t, stream.Close())

	got := collect(t, session)
	require.Equal(t, domain.TranscriptEvent{Kind: domain.EventFinal, Text: "hello there"}, got[len(got)-2])
	require.Equal(t, domain.TranscriptEvent{Kind: domain.EventEnded}, got[len(got)-1])
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.Reason
	}{
		{name: "nil", err: nil, want: domain.ReasonOther},
		{name: "canceled", err: context.Canceled, want: domain.ReasonAborted},
		{name: "wrapped canceled", err: fmt.Errorf("dial: %w", context.Canceled), want: domain.ReasonAborted},
		{name: "permission", err: fmt.Errorf("connect: %w", recognizer.ErrPermission), want: domain.ReasonPermissionDenied},
		{name: "audio", err: fmt.Errorf("start capture: %w: %w", ErrAudio, errors.New("no pulse")), want: domain.ReasonAudioCapture},
		{name: "anything else", err: errors.New("boom"), want: domain.ReasonNetwork},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
