// Package app wires the command line to the interaction controller and the
// IPC control surface.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"parley/internal/capture"
	"parley/internal/cli"
	"parley/internal/config"
	"parley/internal/controller"
	"parley/internal/dispatch"
	"parley/internal/doctor"
	"parley/internal/domain"
	"parley/internal/fsm"
	"parley/internal/ipc"
	"parley/internal/listen"
	"parley/internal/logging"
	"parley/internal/recognizer"
	"parley/internal/speak"
	"parley/internal/version"
)

const forwardTimeout = 220 * time.Millisecond

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("parley"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("parley"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandToggle:
		return r.forwardOrFail(ctx, "toggle")
	case cli.CommandStop:
		return r.forwardOrFail(ctx, "stop")
	case cli.CommandDismiss:
		return r.forwardOrFail(ctx, "dismiss")
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// commandRun owns the control socket and hosts the controller until the
// context is cancelled.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: parley is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	ctrl, err := buildController(cfg, logger, newConsoleSink(r.Stdout))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer ctrl.Close()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, commandHandler{ctrl: ctrl})
	}()

	fmt.Fprintln(r.Stdout, "parley is ready; use `parley toggle` to start listening")
	<-ctx.Done()

	ctrl.Close()
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logger.Info("session host stopped")
	return 0
}

// buildController assembles the capture, recognition, dispatch, and playback
// stack from configuration.
func buildController(cfg config.Config, logger *slog.Logger, sink controller.Sink) (*controller.Controller, error) {
	timeout, err := cfg.Backend.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	client := recognizer.NewClient(recognizer.Config{
		Endpoint:   cfg.Recognizer.Endpoint,
		APIKey:     cfg.Recognizer.APIKey,
		Model:      cfg.Recognizer.Model,
		Language:   cfg.Recognizer.Language,
		SampleRate: capture.SampleRate,
		Channels:   1,
	})
	factory := listen.NewFactory(client, cfg.Audio.Input, cfg.Audio.Fallback, logger)
	sessions := controller.SessionFactoryFunc(func(ctx context.Context) (controller.Session, error) {
		session, err := factory.Start(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	})

	dispatcher := dispatch.NewClient(cfg.Backend.BaseURL, timeout)

	var speaker controller.Speaker
	if strings.TrimSpace(cfg.Speech.Endpoint) != "" {
		synth := speak.NewHTTPSynthesizer(speak.SynthConfig{
			Endpoint: cfg.Speech.Endpoint,
			APIKey:   cfg.Speech.APIKey,
			Voice:    cfg.Speech.Voice,
			Rate:     cfg.Speech.Rate,
		})
		speaker = speak.NewSpeaker(synth, speak.NewPulsePlayer(), logger)
	}

	return controller.NewController(logger, sessions, dispatcher, speaker, sink), nil
}

// commandHandler maps IPC commands onto controller operations.
type commandHandler struct {
	ctrl *controller.Controller
}

func (h commandHandler) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		snapshot := h.ctrl.Snapshot()
		data, err := json.Marshal(snapshot)
		if err != nil {
			return ipc.Response{OK: false, Error: fmt.Sprintf("encode snapshot: %v", err)}
		}
		return ipc.Response{OK: true, State: string(snapshot.State), Data: data}
	case "toggle":
		if err := h.ctrl.Toggle(); err != nil {
			return ipc.Response{OK: false, State: string(h.ctrl.State()), Error: err.Error()}
		}
		state := h.ctrl.State()
		message := "stopping"
		if state == fsm.StateListening {
			message = "listening"
		}
		return ipc.Response{OK: true, State: string(state), Message: message}
	case "stop":
		if err := h.ctrl.StopListening(); err != nil {
			return ipc.Response{OK: false, State: string(h.ctrl.State()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(h.ctrl.State()), Message: "stopping"}
	case "dismiss":
		h.ctrl.DismissError()
		return ipc.Response{OK: true, State: string(h.ctrl.State()), Message: "error dismissed"}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := capture.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle (not running)")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if !handled {
		fmt.Fprintln(r.Stdout, "idle (not running)")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	state := resp.State
	if state == "" {
		state = "idle"
	}
	fmt.Fprintln(r.Stdout, state)

	var snapshot controller.Snapshot
	if len(resp.Data) > 0 && json.Unmarshal(resp.Data, &snapshot) == nil {
		if snapshot.Transcript != "" {
			fmt.Fprintf(r.Stdout, "transcript: %s\n", snapshot.Transcript)
		}
		if snapshot.Error != "" {
			fmt.Fprintf(r.Stdout, "error: %s\n", snapshot.Error)
		}
		fmt.Fprintf(r.Stdout, "messages: %d, queries: %d\n", len(snapshot.Messages), snapshot.Queries)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: parley is not running; start it with `parley run`")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// tryForward sends one command to a running instance. The second return is
// false when no instance owns the socket.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) || isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// consoleSink renders interaction updates as plain lines on the run
// terminal.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (s *consoleSink) StateChanged(state fsm.State) {
	s.println("-- " + string(state))
}

func (s *consoleSink) TranscriptChanged(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.println("~ " + text)
}

func (s *consoleSink) MessageAppended(message domain.Message) {
	s.println(fmt.Sprintf("%s: %s", message.Sender, message.Text))
}

// ReplyReceived is covered by the bot message line; nothing extra to render.
func (s *consoleSink) ReplyReceived(domain.Reply) {}

func (s *consoleSink) ErrorChanged(message string) {
	if message == "" {
		return
	}
	s.println("! " + message)
}

func (s *consoleSink) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}
