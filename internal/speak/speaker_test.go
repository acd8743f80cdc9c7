package speak

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, text)
	return []byte(text), nil
}

func (f *fakeSynth) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakePlayer struct {
	mu     sync.Mutex
	played [][]byte
	block  chan struct{}
	ctxErr error
}

func (f *fakePlayer) Play(ctx context.Context, pcm []byte) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			f.mu.Lock()
			f.ctxErr = ctx.Err()
			f.mu.Unlock()
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, append([]byte(nil), pcm...))
	return nil
}

func (f *fakePlayer) playedBuffers() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.played...)
}

func (f *fakePlayer) canceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxErr != nil
}

func newTestSpeaker(synth Synthesizer, player Player) *Speaker {
	s := NewSpeaker(synth, player, nil)
	s.settle = time.Millisecond
	return s
}

func TestSaySynthesizesAndPlays(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{}
	speaker := newTestSpeaker(synth, player)

	speaker.Say("Your balance is $150.")

	require.Eventually(t, func() bool {
		return len(player.playedBuffers()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"Your balance is $150."}, synth.seen())
	require.Equal(t, []byte("Your balance is $150."), player.playedBuffers()[0])
}

func TestSayIgnoresEmptyText(t *testing.T) {
	synth := &fakeSynth{}
	speaker := newTestSpeaker(synth, &fakePlayer{})

	speaker.Say("")
	speaker.Say("   ")

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, synth.seen())
}

func TestSayInterruptsPreviousUtterance(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{block: make(chan struct{})}
	speaker := newTestSpeaker(synth, player)

	speaker.Say("first reply")
	require.Eventually(t, func() bool {
		return len(synth.seen()) == 1
	}, time.Second, 5*time.Millisecond)

	speaker.Say("second reply")

	require.Eventually(t, player.canceled, time.Second, 5*time.Millisecond)
	close(player.block)

	require.Eventually(t, func() bool {
		buffers := player.playedBuffers()
		return len(buffers) == 1 && string(buffers[0]) == "second reply"
	}, time.Second, 5*time.Millisecond)
}

func TestCancelStopsPlayback(t *testing.T) {
	player := &fakePlayer{block: make(chan struct{})}
	speaker := newTestSpeaker(&fakeSynth{}, player)

	speaker.Say("a long reply")
	require.Eventually(t, func() bool {
		speaker.mu.Lock()
		defer speaker.mu.Unlock()
		return speaker.cancel != nil
	}, time.Second, 5*time.Millisecond)

	speaker.Cancel()
	require.Eventually(t, player.canceled, time.Second, 5*time.Millisecond)
	require.Empty(t, player.playedBuffers())
}

func TestSynthesisFailureIsSwallowed(t *testing.T) {
	synth := &fakeSynth{err: errors.New("service down")}
	player := &fakePlayer{}
	speaker := newTestSpeaker(synth, player)

	speaker.Say("hello")

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, player.playedBuffers())
}

func TestDisabledSpeakerIsNoop(t *testing.T) {
	speaker := NewSpeaker(nil, nil, nil)
	speaker.Say("hello")
	speaker.Cancel()
}

func TestHTTPSynthesizer(t *testing.T) {
	var gotAuth, gotModel, gotEncoding, gotRate string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.URL.Query().Get("model")
		gotEncoding = r.URL.Query().Get("encoding")
		gotRate = r.URL.Query().Get("rate")
		_, _ = w.Write([]byte{0x01, 0x02, 0x03, 0x04})
	}))
	defer server.Close()

	synth := NewHTTPSynthesizer(SynthConfig{Endpoint: server.URL, APIKey: "secret"})
	pcm, err := synth.Synthesize(context.Background(), "hello")
	require.NoError(t, err)

	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, pcm)
	require.Equal(t, "Token secret", gotAuth)
	require.Equal(t, "aura-asteria-en", gotModel)
	require.Equal(t, "linear16", gotEncoding)
	require.Equal(t, "0.9", gotRate)
}

func TestHTTPSynthesizerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer server.Close()

	synth := NewHTTPSynthesizer(SynthConfig{Endpoint: server.URL})
	_, err := synth.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad voice")
}

func TestDecodeSamples(t *testing.T) {
	require.Empty(t, decodeSamples(nil))
	require.Equal(t, []int16{0x0201}, decodeSamples([]byte{0x01, 0x02, 0xff}))
	require.Equal(t, []int16{-1}, decodeSamples([]byte{0xff, 0xff}))
}
