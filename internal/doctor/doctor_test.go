package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/config"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	loaded, err := config.Load("/dev/null")
	require.NoError(t, err)
	return loaded.Config
}

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckRecognizerMissingEndpoint(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Recognizer.Endpoint = ""

	check := checkRecognizer(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "recognizer.endpoint is empty")
}

func TestCheckRecognizerMissingKey(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Recognizer.Endpoint = "wss://api.deepgram.com"
	cfg.Recognizer.APIKey = ""

	check := checkRecognizer(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "recognizer.api_key is empty")
}

func TestCheckRecognizerConfigured(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Recognizer.Endpoint = "wss://api.deepgram.com"
	cfg.Recognizer.APIKey = "token"

	check := checkRecognizer(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "wss://api.deepgram.com")
	require.Contains(t, check.Message, "nova-2")
}

func TestCheckBackendReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = server.URL

	check := checkBackend(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "reachable at")
}

func TestCheckBackendFailureStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = server.URL

	check := checkBackend(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")
}

func TestCheckBackendUnreachable(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = "http://127.0.0.1:1"

	check := checkBackend(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "request failed")
}

func TestCheckBackendEmptyBaseURL(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = ""

	check := checkBackend(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "backend.base_url is empty")
}

func TestCheckSpeechDisabled(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Speech.Endpoint = ""

	check := checkSpeech(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "playback disabled")
}

func TestCheckSpeechMissingKey(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Speech.Endpoint = "https://api.deepgram.com"
	cfg.Speech.APIKey = ""

	check := checkSpeech(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "speech.api_key is empty")
}

func TestCheckSpeechConfigured(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Speech.Endpoint = "https://api.deepgram.com"
	cfg.Speech.APIKey = "token"

	check := checkSpeech(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "aura-asteria-en")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), defaultConfig(t))
	require.False(t, check.Pass)
	require.Equal(t, "audio.device", check.Name)
}

func TestRunIncludesAllChecks(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = server.URL

	report := Run(context.Background(), config.Loaded{Path: "/tmp/parley.yaml", Config: cfg})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "audio.device", "recognizer", "backend", "speech"}, names)
}
