package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/audiomon/internal/config"
	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
)

type stubBackend struct {
	devices    []device.AudioDevice
	defaults   map[device.Class]string
	enumErr    error
	defaultErr error
}

func (s stubBackend) Enumerate(context.Context) ([]device.AudioDevice, error) {
	return s.devices, s.enumErr
}

func (s stubBackend) CurrentDefault(_ context.Context, class device.Class) (string, bool, error) {
	id, ok := s.defaults[class]
	return id, ok, s.defaultErr
}

func (s stubBackend) SetDefault(context.Context, device.Class, string) error { return nil }

func (s stubBackend) Subscribe(context.Context, func(coordinator.Change)) (coordinator.Subscription, error) {
	return coordinator.NopSubscription{}, nil
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

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "/run") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckRules(t *testing.T) {
	require.True(t, checkRules(config.Default().Rules).Pass)

	check := checkRules(device.RuleSet{Output: []device.Rule{{Name: "X", MatchType: device.MatchExact, Enabled: false}}})
	require.False(t, check.Pass)
	require.Equal(t, "0 output and 0 input rules enabled", check.Message)
}

func TestCheckBackendPredictsPerClass(t *testing.T) {
	backend := stubBackend{
		devices: []device.AudioDevice{
			{ID: "alsa_output.pci", Name: "Built-in Audio Analog Stereo", Class: device.ClassOutput, Default: true},
			{ID: "bluez_output.AA", Name: "AirPods Pro", Class: device.ClassOutput},
			{ID: "alsa_input.usb", Name: "USB Mic", Class: device.ClassInput, Default: true},
		},
		defaults: map[device.Class]string{
			device.ClassOutput: "alsa_output.pci",
			device.ClassInput:  "alsa_input.usb",
		},
	}

	checks := checkBackend(context.Background(), config.Default(), backend)
	require.Len(t, checks, 3)
	require.Equal(t, "pulse: 3 devices", checks[0].Message)
	require.Equal(t, "audio.output", checks[1].Name)
	require.Contains(t, checks[1].Message, `would switch to "AirPods Pro" (weight 100, higher_priority)`)
	require.Equal(t, "audio.input", checks[2].Name)
	require.Contains(t, checks[2].Message, "no device matches a rule")
	for _, c := range checks {
		require.True(t, c.Pass, c.Name)
	}
}

func TestCheckBackendEnumerateFailure(t *testing.T) {
	checks := checkBackend(context.Background(), config.Default(), stubBackend{enumErr: errors.New("connection refused")})
	require.Len(t, checks, 1)
	require.False(t, checks[0].Pass)
	require.Contains(t, checks[0].Message, "connection refused")
}

func TestPredictDefaultReadFailure(t *testing.T) {
	check := predict(context.Background(), stubBackend{defaultErr: errors.New("boom")}, nil, config.Default().Rules, device.ClassOutput)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "read default")
}

func TestCheckDaemonNotRunning(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	check := checkDaemon(context.Background())
	require.True(t, check.Pass)
	require.Equal(t, "not running", check.Message)
}

func TestCheckMetricsEndpointSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/metrics", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("audiomon_generation 3\n"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Metrics.Listen = strings.TrimPrefix(server.URL, "http://")

	check := checkMetricsEndpoint(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "serving at")
}

func TestCheckMetricsEndpointFailureStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Metrics.Listen = strings.TrimPrefix(server.URL, "http://")

	check := checkMetricsEndpoint(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")
}

func TestCheckMetricsEndpointWithoutSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("go_goroutines 7\n"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Metrics.Listen = strings.TrimPrefix(server.URL, "http://")

	check := checkMetricsEndpoint(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "no audiomon series yet")
}

func TestCheckMetricsEndpointEmptyListen(t *testing.T) {
	check := checkMetricsEndpoint(config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "metrics.listen is empty")
}

func TestRunIncludesConfigAndBusctl(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "busctl"), []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	loaded := config.Loaded{Path: "/tmp/missing.toml", Config: config.Default()}
	report := Run(context.Background(), loaded, stubBackend{})

	text := report.String()
	require.Contains(t, text, `[OK] config: "/tmp/missing.toml" not found; using defaults`)
	require.Contains(t, text, "[OK] busctl:")
	require.Contains(t, text, "[OK] daemon: not running")
	require.True(t, report.OK(), text)
}
