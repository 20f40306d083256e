package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/audiomon/internal/cli"
	"github.com/rbright/audiomon/internal/config"
	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/ipc"
	"github.com/rbright/audiomon/internal/logging"
	"github.com/rbright/audiomon/internal/metrics"
	"github.com/rbright/audiomon/internal/notify"
	"github.com/rbright/audiomon/internal/version"
)

func settingsFrom(cfg config.Config) coordinator.Settings {
	return coordinator.Settings{
		Rules:               cfg.Rules.Clone(),
		PollInterval:        cfg.General.PollInterval,
		RespectManualSwitch: cfg.General.RespectManualSwitch,
	}
}

// commandRun owns the control socket for the lifetime of the daemon.
func (r Runner) commandRun(
	ctx context.Context,
	parsed cli.Parsed,
	loaded config.Loaded,
	logRuntime logging.Runtime,
	logger *slog.Logger,
) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("acquire control socket failed", "socket", socketPath, "error", err.Error())
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	cfg := loaded.Config
	backend, err := r.openBackend(cfg.Audio, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	instance := uuid.NewString()
	logger = logger.With("instance", instance)

	notifier := notify.New(cfg.Notifications, logger.With("component", "notify"))
	m := metrics.New()
	m.SetInfo(version.Short(), backend.Name(), instance)
	coord := coordinator.New(logger.With("component", "coordinator"), backend, notifier, m, settingsFrom(cfg))

	reloads := &reloader{
		logger:     logger,
		coord:      coord,
		notifier:   notifier,
		logRuntime: logRuntime,
		verbose:    parsed.Verbose,
		started:    cfg,
	}
	watcher := config.NewWatcher(loaded.Path, logger.With("component", "config"), reloads.apply, func(err error) {
		notifier.ConfigRejected(ctx, err)
	})

	d := &daemon{
		coord:    coord,
		reload:   watcher.Reload,
		instance: instance,
		backend:  backend.Name(),
		started:  time.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return ipc.Serve(gctx, listener, d) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, watcher.Reload) })
	if listen := cfg.Metrics.Listen; listen != "" {
		ml, err := net.Listen("tcp", listen)
		if err != nil {
			logger.Warn("metrics endpoint disabled", "listen", listen, "error", err.Error())
		} else {
			logger.Info("metrics endpoint listening", "addr", ml.Addr().String())
			g.Go(func() error { return m.Serve(gctx, ml) })
		}
	}

	logger.Info("daemon started",
		"socket", socketPath,
		"backend", backend.Name(),
		"poll_interval", cfg.General.PollInterval.String(),
		"version", version.Short(),
	)
	if parsed.Verbose {
		fmt.Fprintf(r.Stderr, "audiomon %s running (backend %s, socket %s)\n", version.Short(), backend.Name(), socketPath)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon failed", "error", err.Error())
		return 1
	}
	logger.Info("daemon stopped")
	return 0
}

// reloadOnHangup requests a config reload on every SIGHUP.
func reloadOnHangup(ctx context.Context, reload func()) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			reload()
		}
	}
}

// reloader applies accepted configs to the running daemon. Backend and
// metrics endpoint changes only take effect on restart.
type reloader struct {
	logger     *slog.Logger
	coord      *coordinator.Coordinator
	notifier   *notify.Notifier
	logRuntime logging.Runtime
	verbose    bool
	started    config.Config
}

func (rl *reloader) apply(loaded config.Loaded) {
	cfg := loaded.Config
	rl.coord.ApplyConfig(settingsFrom(cfg))
	rl.notifier.Configure(cfg.Notifications)
	rl.logRuntime.SetLevel(levelFor(cfg, rl.verbose))

	if cfg.Audio != rl.started.Audio {
		rl.logger.Warn("audio settings changed; restart to apply",
			"running", rl.started.Audio.Backend,
			"configured", cfg.Audio.Backend,
		)
	}
	if cfg.Metrics != rl.started.Metrics {
		rl.logger.Warn("metrics.listen changed; restart to apply",
			"running", rl.started.Metrics.Listen,
			"configured", cfg.Metrics.Listen,
		)
	}
}

// daemon answers control requests against the running coordinator.
type daemon struct {
	coord    *coordinator.Coordinator
	reload   func()
	instance string
	backend  string
	started  time.Time
}

func (d *daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return withData(ipc.Response{OK: true, State: "running"}, d.status())
	case ipc.CommandEvaluate:
		return d.evaluate(ctx, req.Class)
	case ipc.CommandSwitch:
		return d.switchTo(ctx, req.Class, req.Device)
	case ipc.CommandReload:
		d.reload()
		return ipc.Response{OK: true, Message: "reload requested"}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unsupported command %q", req.Command)}
	}
}

func (d *daemon) status() statusView {
	view := newStatusView(d.coord.Status())
	view.Instance = d.instance
	view.Backend = d.backend
	view.Uptime = time.Since(d.started).Truncate(time.Second).String()
	return view
}

func (d *daemon) evaluate(ctx context.Context, rawClass string) ipc.Response {
	classes := device.Classes
	if strings.TrimSpace(rawClass) != "" {
		class, err := device.ParseClass(rawClass)
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		classes = []device.Class{class}
	}

	views := make([]resultView, 0, len(classes))
	var failures []string
	for _, class := range classes {
		res := d.coord.EvaluateNow(ctx, class)
		views = append(views, newResultView(res))
		if res.Err != nil && !coordinator.IsStale(res.Err) {
			failures = append(failures, fmt.Sprintf("%s: %v", class, res.Err))
		}
	}

	resp := ipc.Response{OK: len(failures) == 0}
	if !resp.OK {
		resp.Error = strings.Join(failures, "; ")
	}
	return withData(resp, views)
}

func (d *daemon) switchTo(ctx context.Context, rawClass, key string) ipc.Response {
	class, err := device.ParseClass(rawClass)
	if err != nil {
		return ipc.Response{OK: false, Error: err.Error()}
	}
	if strings.TrimSpace(key) == "" {
		return ipc.Response{OK: false, Error: "switch requires a device"}
	}

	res := d.coord.SwitchTo(ctx, class, key)
	if res.Err != nil {
		return withData(ipc.Response{OK: false, Error: res.Err.Error()}, newResultView(res))
	}
	return withData(ipc.Response{OK: true, Message: switchedMessage(class, res.Decision.Device)}, newResultView(res))
}

func withData(resp ipc.Response, v any) ipc.Response {
	out, err := resp.WithData(v)
	if err != nil {
		return ipc.Response{OK: false, Error: err.Error()}
	}
	return out
}
