// Package recognizer streams captured PCM audio to a websocket
// speech-recognition service and surfaces interim/final transcript results.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"parley/internal/domain"
)

// ErrPermission marks a handshake rejected for credential reasons.
var ErrPermission = errors.New("recognizer rejected credentials")

// Config controls recognition stream settings. Recognition is one utterance
// per stream: the first speech-final result ends the stream.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Channels   int
}

// Client starts streaming recognition sessions against one configured service.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Client{cfg: cfg}
}

// Available reports whether the environment offers a recognition capability.
// This is the one-shot capability check run before each listening attempt.
func (c *Client) Available() error {
	if strings.TrimSpace(c.cfg.Endpoint) == "" || strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.ErrUnsupported
	}
	return nil
}

// Start dials the recognition service and begins the stream read/write loops.
func (c *Client) Start(ctx context.Context) (*Stream, error) {
	if err := c.Available(); err != nil {
		return nil, err
	}

	wsURL, err := listenURL(c.cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("connect recognizer: %s: %w", resp.Status, ErrPermission)
		}
		return nil, fmt.Errorf("connect recognizer: %w", err)
	}

	s := &Stream{
		conn:   conn,
		events: make(chan domain.TranscriptEvent, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// listenURL builds the websocket listen URL with fixed one-utterance settings.
func listenURL(cfg Config) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil {
		return "", fmt.Errorf("parse recognizer endpoint: %w", err)
	}

	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported recognizer endpoint scheme %q", parsed.Scheme)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/listen"

	query := url.Values{}
	query.Set("model", cfg.Model)
	query.Set("language", cfg.Language)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	query.Set("channels", strconv.Itoa(cfg.Channels))
	query.Set("interim_results", "true")
	query.Set("utterance_end_ms", "1500")
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
