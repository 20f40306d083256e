package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/audiomon/internal/audio"
	"github.com/rbright/audiomon/internal/config"
	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/ipc"
)

const testConfig = `
[general]
poll_interval = "1s"

[notifications]
backend = "none"

[[output_devices]]
name = "AirPods"
weight = 100
match_type = "contains"

[[output_devices]]
name = "Built-in Audio"
weight = 10
match_type = "starts_with"

[[input_devices]]
name = "USB Mic"
weight = 50
match_type = "exact"
`

type fakeBackend struct {
	mu       sync.Mutex
	devices  []device.AudioDevice
	defaults map[device.Class]string
	enumErr  error
	sets     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		devices: []device.AudioDevice{
			{ID: "alsa_output.pci", Name: "Built-in Audio Analog Stereo", Class: device.ClassOutput},
			{ID: "bluez_output.AA", Name: "AirPods Pro", Class: device.ClassOutput},
			{ID: "alsa_input.usb", Name: "USB Mic", Class: device.ClassInput},
		},
		defaults: map[device.Class]string{
			device.ClassOutput: "alsa_output.pci",
			device.ClassInput:  "alsa_input.usb",
		},
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Enumerate(context.Context) ([]device.AudioDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	out := make([]device.AudioDevice, 0, len(f.devices))
	for _, d := range f.devices {
		d.Default = f.defaults[device.ClassOutput] == d.ID || f.defaults[device.ClassInput] == d.ID
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeBackend) CurrentDefault(_ context.Context, class device.Class) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.defaults[class]
	return id, ok, nil
}

func (f *fakeBackend) SetDefault(_ context.Context, class device.Class, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[class] = id
	f.sets = append(f.sets, class.String()+":"+id)
	return nil
}

func (f *fakeBackend) Subscribe(context.Context, func(coordinator.Change)) (coordinator.Subscription, error) {
	return coordinator.NopSubscription{}, nil
}

func (f *fakeBackend) setCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sets...)
}

func (f *fakeBackend) open(config.Audio, *slog.Logger) (audio.Backend, error) {
	return f, nil
}

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "audiomon")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerRejectsInvalidConfig(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte("[general]\npoll_interval = \"10ms\"\n"), 0o600))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "check-config"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "parse config")
	require.Empty(t, stdout.String())
}

func TestRunnerCheckConfigListsRules(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "check-config"})
	require.Equal(t, 0, exitCode, stderr.String())
	out := stdout.String()
	require.Contains(t, out, "poll_interval: 1s")
	require.Contains(t, out, "notifications.backend: none")
	require.Contains(t, out, `1. contains "AirPods" weight=100`)
	require.Contains(t, out, `2. starts_with "Built-in Audio" weight=10`)
	require.Contains(t, out, `1. exact "USB Mic" weight=50`)
}

func TestRunnerInitConfigRefusesOverwriteWithoutForce(t *testing.T) {
	setupRunnerEnv(t)
	path := filepath.Join(t.TempDir(), "audiomon", "config.toml")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	require.Equal(t, 0, runner.Execute(context.Background(), []string{"init-config", "--config", path}))
	require.Contains(t, stdout.String(), "wrote "+path)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, config.Default().Rules, loaded.Config.Rules)

	stderr.Reset()
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"init-config", "--config", path}))
	require.Contains(t, stderr.String(), "--force")

	require.Equal(t, 0, runner.Execute(context.Background(), []string{"init-config", "--config", path, "--force"}))
}

func TestRunnerStatusNotRunningWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "not running\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerEvaluateAndReloadRequireDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)

	for _, cmd := range []string{"evaluate", "reload"} {
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		runner := Runner{Stdout: &stdout, Stderr: &stderr}

		exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, cmd})
		require.Equal(t, 1, exitCode, cmd)
		require.Contains(t, stderr.String(), "not running", cmd)
	}
}

func TestRunnerForwardsCommandsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)
	requests := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "audiomon.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		switch req.Command {
		case ipc.CommandStatus:
			return withData(ipc.Response{OK: true, State: "running"}, statusView{Backend: "fake", Uptime: "3s", Instance: "abc"})
		case ipc.CommandEvaluate:
			return withData(ipc.Response{OK: true}, []resultView{{Class: "input", Generation: 4, Decision: "keep input \"USB Mic\" (weight 50)"}})
		case ipc.CommandSwitch:
			return ipc.Response{OK: true, Message: "output switched to \"AirPods Pro\""}
		case ipc.CommandReload:
			return ipc.Response{OK: true, Message: "reload requested"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"status"}, want: "running (backend fake, up 3s, instance abc)"},
		{args: []string{"evaluate", "--class", "input"}, want: "input [gen 4]: keep input \"USB Mic\" (weight 50)"},
		{args: []string{"switch", "--class", "output", "--device", "AirPods Pro"}, want: "output switched to \"AirPods Pro\""},
		{args: []string{"reload"}, want: "reload requested"},
	}
	for _, tc := range tests {
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		runner := Runner{Stdout: &stdout, Stderr: &stderr}

		exitCode := runner.Execute(context.Background(), append([]string{"--config", paths.configPath}, tc.args...))
		require.Equal(t, 0, exitCode, tc.args)
		require.Empty(t, stderr.String(), tc.args)
		require.Contains(t, stdout.String(), tc.want)
	}

	got := []ipc.Request{<-requests, <-requests, <-requests, <-requests}
	require.Equal(t, ipc.Request{Command: ipc.CommandEvaluate, Class: "input"}, got[1])
	require.Equal(t, ipc.Request{Command: ipc.CommandSwitch, Class: "output", Device: "AirPods Pro"}, got[2])
}

func TestRunnerEvaluatePrintsResultsAndFailsOnDaemonError(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "audiomon.sock"), func(context.Context, ipc.Request) ipc.Response {
		return withData(ipc.Response{OK: false, Error: "output: enumerate devices: connection refused"}, []resultView{
			{Class: "output", Generation: 2, Error: "enumerate devices: connection refused"},
		})
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "evaluate"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "output [gen 2]: (failed: enumerate devices: connection refused)")
	require.Contains(t, stderr.String(), "connection refused")
}

func TestRunnerDevicesExplainsScores(t *testing.T) {
	paths := setupRunnerEnv(t)
	backend := newFakeBackend()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, OpenBackend: backend.open}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices", "--class", "output"})
	require.Equal(t, 0, exitCode, stderr.String())
	out := stdout.String()
	require.Contains(t, out, "output:\n")
	require.NotContains(t, out, "input:")
	require.Contains(t, out, "* AirPods Pro")
	require.Contains(t, out, `rule=contains "AirPods"`)
	require.Contains(t, out, "[default]")
}

func TestRunnerDevicesReportsBackendFailure(t *testing.T) {
	paths := setupRunnerEnv(t)
	backend := newFakeBackend()
	backend.enumErr = errors.New("connection refused")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, OpenBackend: backend.open}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error: connection refused")
}

func TestRunnerSwitchWithoutDaemonSetsDefaultDirectly(t *testing.T) {
	paths := setupRunnerEnv(t)
	backend := newFakeBackend()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, OpenBackend: backend.open}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "switch", "--class", "output", "--device", "bluez_output.AA"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "output switched to \"AirPods Pro\"\n", stdout.String())
	require.Equal(t, []string{"output:bluez_output.AA"}, backend.setCalls())

	stderr.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "switch", "--class", "input", "--device", "AirPods Pro"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), `no input device named "AirPods Pro"`)
}

func TestRunnerRunRefusesSecondDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "audiomon.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, OpenBackend: newFakeBackend().open}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "already running")
}

func TestRunnerRunServesControlRequests(t *testing.T) {
	paths := setupRunnerEnv(t)
	backend := newFakeBackend()
	socketPath := filepath.Join(paths.runtimeDir, "audiomon.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		runner := Runner{
			Stdout:      &bytes.Buffer{},
			Stderr:      &bytes.Buffer{},
			Logger:      slog.New(slog.DiscardHandler),
			OpenBackend: backend.open,
		}
		done <- runner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()

	require.Eventually(t, func() bool {
		alive, err := ipc.Probe(context.Background(), socketPath, 200*time.Millisecond)
		return err == nil && alive
	}, 5*time.Second, 20*time.Millisecond)

	// The startup evaluation promotes the higher-weight output.
	require.Eventually(t, func() bool {
		calls := backend.setCalls()
		return len(calls) > 0 && calls[0] == "output:bluez_output.AA"
	}, 5*time.Second, 20*time.Millisecond)

	client := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Logger: slog.New(slog.DiscardHandler)}
	var stdout bytes.Buffer
	client.Stdout = &stdout
	require.Eventually(t, func() bool {
		stdout.Reset()
		return client.Execute(context.Background(), []string{"--config", paths.configPath, "status"}) == 0 &&
			bytes.Contains(stdout.Bytes(), []byte(`output: "AirPods Pro"`))
	}, 5*time.Second, 50*time.Millisecond)
	require.Contains(t, stdout.String(), "running (backend fake")

	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{
		"--config", paths.configPath, "switch", "--class", "output", "--device", "Built-in Audio Analog Stereo",
	}))
	require.Equal(t, "output switched to \"Built-in Audio Analog Stereo\"\n", stdout.String())
	require.Contains(t, backend.setCalls(), "output:alsa_output.pci")

	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "status"}))
	require.Contains(t, stdout.String(), "held: alsa_output.pci")

	cancel()
	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, statErr := os.Stat(socketPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestTryForwardSuccessAndFailureResponses(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "audiomon.sock")
	shutdown := startIPCServerForRunnerTest(t, socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		if req.Command == ipc.CommandStatus {
			return ipc.Response{OK: true, State: "running"}
		}
		return ipc.Response{OK: false, Error: "unsupported"}
	})
	defer shutdown()

	resp, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus}, time.Second)
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "running", resp.State)

	_, handled, err = tryForward(context.Background(), socketPath, ipc.Request{Command: "bogus"}, time.Second)
	require.True(t, handled)
	require.EqualError(t, err, "unsupported")
}

func TestTryForwardDoesNotRemoveSocketPathOnForwardFailure(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "audiomon.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus}, time.Second)
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsUnresponsiveOwnerAsHandledError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "audiomon.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus}, 300*time.Millisecond)
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), `forward command "status":`)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
