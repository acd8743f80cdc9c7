// Package doctor runs runtime readiness diagnostics for config, audio, the
// recognizer, and the intent service.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"parley/internal/capture"
	"parley/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkRecognizer(cfg.Config))
	checks = append(checks, checkBackend(ctx, cfg.Config))
	checks = append(checks, checkSpeech(cfg.Config))

	return Report{Checks: checks}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := capture.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRecognizer validates recognition settings without opening a stream.
func checkRecognizer(cfg config.Config) Check {
	endpoint := strings.TrimSpace(cfg.Recognizer.Endpoint)
	if endpoint == "" {
		return Check{Name: "recognizer", Pass: false, Message: "recognizer.endpoint is empty"}
	}
	if strings.TrimSpace(cfg.Recognizer.APIKey) == "" {
		return Check{Name: "recognizer", Pass: false, Message: "recognizer.api_key is empty"}
	}
	return Check{
		Name:    "recognizer",
		Pass:    true,
		Message: fmt.Sprintf("configured for %s (model %s)", endpoint, cfg.Recognizer.Model),
	}
}

// checkBackend probes the intent service liveness endpoint.
func checkBackend(ctx context.Context, cfg config.Config) Check {
	base := strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if base == "" {
		return Check{Name: "backend", Pass: false, Message: "backend.base_url is empty"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
	if err != nil {
		return Check{Name: "backend", Pass: false, Message: fmt.Sprintf("build probe request: %v", err)}
	}

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "backend", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "backend", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
	}
	return Check{Name: "backend", Pass: true, Message: fmt.Sprintf("reachable at %s", base)}
}

// checkSpeech reports whether reply playback is enabled. An empty endpoint is
// a pass: playback degrades to a no-op by design of the speech config.
func checkSpeech(cfg config.Config) Check {
	endpoint := strings.TrimSpace(cfg.Speech.Endpoint)
	if endpoint == "" {
		return Check{Name: "speech", Pass: true, Message: "playback disabled (speech.endpoint is empty)"}
	}
	if strings.TrimSpace(cfg.Speech.APIKey) == "" {
		return Check{Name: "speech", Pass: false, Message: "speech.endpoint is set but speech.api_key is empty"}
	}
	return Check{
		Name:    "speech",
		Pass:    true,
		Message: fmt.Sprintf("configured for %s (voice %s)", endpoint, cfg.Speech.Voice),
	}
}
