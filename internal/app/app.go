// Package app wires command dispatch to the daemon and its one-shot commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/audiomon/internal/audio"
	"github.com/rbright/audiomon/internal/cli"
	"github.com/rbright/audiomon/internal/config"
	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/doctor"
	"github.com/rbright/audiomon/internal/ipc"
	"github.com/rbright/audiomon/internal/logging"
	"github.com/rbright/audiomon/internal/priority"
	"github.com/rbright/audiomon/internal/version"
)

const (
	appName = "audiomon"

	statusTimeout  = 500 * time.Millisecond
	forwardTimeout = 10 * time.Second
	localTimeout   = 5 * time.Second
)

var errNotRunning = errors.New("audiomon daemon is not running")

// Runner executes one command line. Logger and OpenBackend override the
// defaults when set.
type Runner struct {
	Stdout      io.Writer
	Stderr      io.Writer
	Logger      *slog.Logger
	OpenBackend func(config.Audio, *slog.Logger) (audio.Backend, error)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(appName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(appName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	if parsed.Command == cli.CommandInitConfig {
		return r.commandInitConfig(parsed)
	}

	logRuntime, err := logging.New(logging.Options{
		Level:  "info",
		Stderr: parsed.Verbose && parsed.Command == cli.CommandRun,
	})
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
	logRuntime.SetLevel(levelFor(cfgLoaded.Config, parsed.Verbose))
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, parsed, cfgLoaded, logRuntime, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandEvaluate:
		return r.commandEvaluate(ctx, parsed.Class)
	case cli.CommandSwitch:
		return r.commandSwitch(ctx, parsed, cfgLoaded.Config, logger)
	case cli.CommandReload:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandReload})
	case cli.CommandDevices:
		return r.commandDevices(ctx, parsed.Class, cfgLoaded.Config, logger)
	case cli.CommandCheckConfig:
		return r.commandCheckConfig(cfgLoaded)
	case cli.CommandDoctor:
		return r.commandDoctor(ctx, cfgLoaded, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func levelFor(cfg config.Config, verbose bool) string {
	if verbose {
		return "debug"
	}
	return cfg.General.LogLevel
}

func (r Runner) openBackend(cfg config.Audio, logger *slog.Logger) (audio.Backend, error) {
	if r.OpenBackend != nil {
		return r.OpenBackend(cfg, logger)
	}
	return audio.Open(cfg, appName, logger.With("component", "audio"))
}

func (r Runner) commandInitConfig(parsed cli.Parsed) int {
	path, err := config.ResolvePath(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if err := config.WriteDefault(path, parsed.Force); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "wrote %s\n", path)
	return 0
}

func (r Runner) commandCheckConfig(loaded config.Loaded) int {
	cfg := loaded.Config
	source := "loaded"
	if !loaded.Exists {
		source = "defaults"
	}
	fmt.Fprintf(r.Stdout, "config: %s (%s)\n", loaded.Path, source)
	fmt.Fprintf(r.Stdout, "poll_interval: %s\n", cfg.General.PollInterval)
	fmt.Fprintf(r.Stdout, "respect_manual_switch: %t\n", cfg.General.RespectManualSwitch)
	fmt.Fprintf(r.Stdout, "audio.backend: %s\n", cfg.Audio.Backend)
	fmt.Fprintf(r.Stdout, "notifications.backend: %s\n", cfg.Notifications.Backend)
	for _, class := range device.Classes {
		fmt.Fprintf(r.Stdout, "%s rules:\n", class)
		rules := cfg.Rules.For(class)
		if len(rules) == 0 {
			fmt.Fprintln(r.Stdout, "  (none)")
		}
		for i, rule := range rules {
			state := ""
			if !rule.Enabled {
				state = " (disabled)"
			}
			fmt.Fprintf(r.Stdout, "  %d. %s %q weight=%d%s\n", i+1, rule.MatchType, rule.Name, rule.Weight, state)
		}
	}
	return 0
}

func (r Runner) commandDoctor(ctx context.Context, loaded config.Loaded, logger *slog.Logger) int {
	backend, err := r.openBackend(loaded.Config.Audio, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	report := doctor.Run(ctx, loaded, backend)
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return 0
	}
	return 1
}

func (r Runner) commandDevices(ctx context.Context, only device.Class, cfg config.Config, logger *slog.Logger) int {
	backend, err := r.openBackend(cfg.Audio, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(ctx, localTimeout)
	defer cancel()
	devices, err := backend.Enumerate(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	for _, class := range device.Classes {
		if only != 0 && only != class {
			continue
		}
		fmt.Fprintf(r.Stdout, "%s:\n", class)
		fmt.Fprint(r.Stdout, priority.FormatScores(priority.Explain(devices, cfg.Rules.For(class), class)))
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, statusTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var view statusView
	if err := resp.DecodeData(&view); err != nil {
		fmt.Fprintf(r.Stderr, "error: decode status: %v\n", err)
		return 1
	}
	fmt.Fprint(r.Stdout, view.Format())
	return 0
}

func (r Runner) commandEvaluate(ctx context.Context, class device.Class) int {
	req := ipc.Request{Command: ipc.CommandEvaluate}
	if class != 0 {
		req.Class = class.String()
	}

	resp, err := r.forward(ctx, req)
	var results []resultView
	if len(resp.Data) > 0 {
		if decodeErr := resp.DecodeData(&results); decodeErr != nil && err == nil {
			err = fmt.Errorf("decode results: %w", decodeErr)
		}
	}
	for _, res := range results {
		fmt.Fprintln(r.Stdout, res.Format())
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// commandSwitch forwards to a running daemon so its hold takes effect, and
// otherwise sets the default directly.
func (r Runner) commandSwitch(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	req := ipc.Request{Command: ipc.CommandSwitch, Class: parsed.Class.String(), Device: parsed.Device}
	socketPath, err := ipc.RuntimeSocketPath()
	if err == nil {
		resp, handled, err := tryForward(ctx, socketPath, req, forwardTimeout)
		if handled {
			if err != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
				return 1
			}
			fmt.Fprintln(r.Stdout, resp.Message)
			return 0
		}
	}

	backend, err := r.openBackend(cfg.Audio, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(ctx, localTimeout)
	defer cancel()

	devices, err := backend.Enumerate(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	candidates := make([]device.AudioDevice, 0, len(devices))
	for _, d := range devices {
		if d.Class.Includes(parsed.Class) {
			candidates = append(candidates, d)
		}
	}
	target, ok := device.Find(candidates, parsed.Device)
	if !ok {
		fmt.Fprintf(r.Stderr, "error: no %s device named %q\n", parsed.Class, parsed.Device)
		return 1
	}
	if err := backend.SetDefault(ctx, parsed.Class, target.ID); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	logger.Info("default set without daemon", "class", parsed.Class.String(), "device_id", target.ID, "device_name", target.Name)
	fmt.Fprintln(r.Stdout, switchedMessage(parsed.Class, target))
	return 0
}

func switchedMessage(class device.Class, d device.AudioDevice) string {
	return fmt.Sprintf("%s switched to %q", class, d.Name)
}

// forward sends req to the daemon, failing when none is running.
func (r Runner) forward(ctx context.Context, req ipc.Request) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, err
	}
	resp, handled, err := tryForward(ctx, socketPath, req, forwardTimeout)
	if !handled {
		return ipc.Response{}, errNotRunning
	}
	return resp, err
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	resp, err := r.forward(ctx, req)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// tryForward reports handled=false when no daemon owns socketPath. A daemon
// that answers with OK=false yields its error alongside the response.
func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(strings.TrimSpace(resp.Error))
	}

	if ipc.IsNotRunning(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}
