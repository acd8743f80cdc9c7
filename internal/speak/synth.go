// Package speak turns reply text into audio and plays it. Replies are spoken
// whole; starting a new utterance interrupts the one in progress.
package speak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SampleRate is the PCM rate requested from the synthesis service; it matches
// what the playback stream is opened with.
const SampleRate = 16000

// Synthesizer renders text to 16-bit little-endian mono PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthConfig points at an HTTP text-to-speech service.
type SynthConfig struct {
	Endpoint string
	APIKey   string
	Voice    string
	Rate     float64
}

// HTTPSynthesizer requests speech audio from a remote synthesis service.
type HTTPSynthesizer struct {
	cfg        SynthConfig
	httpClient *http.Client
}

func NewHTTPSynthesizer(cfg SynthConfig) *HTTPSynthesizer {
	if cfg.Voice == "" {
		cfg.Voice = "aura-asteria-en"
	}
	if cfg.Rate == 0 {
		cfg.Rate = 0.9
	}
	return &HTTPSynthesizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type synthRequest struct {
	Text string `json:"text"`
}

// Synthesize posts the text and returns the raw PCM response body.
func (h *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.speakURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Token "+h.cfg.APIKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request synthesis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("synthesis service returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	return pcm, nil
}

func (h *HTTPSynthesizer) speakURL() string {
	base := strings.TrimRight(strings.TrimSpace(h.cfg.Endpoint), "/")

	query := url.Values{}
	query.Set("model", h.cfg.Voice)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(SampleRate))
	query.Set("rate", strconv.FormatFloat(h.cfg.Rate, 'f', -1, 64))

	return base + "/speak?" + query.Encode()
}
