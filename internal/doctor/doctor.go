// Package doctor runs runtime readiness diagnostics for config, tools, audio backend, and daemon.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/audiomon/internal/config"
	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/ipc"
	"github.com/rbright/audiomon/internal/priority"
)

const backendTimeout = 3 * time.Second

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

// Run executes environment/config/runtime checks for a loaded config against backend.
func Run(ctx context.Context, cfg config.Loaded, backend coordinator.Backend) Report {
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		configMsg = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	if n := len(cfg.Warnings); n > 0 && cfg.Exists {
		configMsg = fmt.Sprintf("%s (%d warnings)", configMsg, n)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})
	checks = append(checks, checkRules(cfg.Config.Rules))

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory available", "XDG_RUNTIME_DIR is empty; the daemon cannot open its control socket"))

	if cfg.Config.Notifications.Backend == config.NotifyDesktop {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	checks = append(checks, checkBackend(ctx, cfg.Config, backend)...)
	checks = append(checks, checkDaemon(ctx))
	if cfg.Config.Metrics.Listen != "" {
		checks = append(checks, checkMetricsEndpoint(cfg.Config))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkRules fails when no class has an enabled rule, since nothing would ever be selected.
func checkRules(rules device.RuleSet) Check {
	count := func(rs []device.Rule) int {
		n := 0
		for _, r := range rs {
			if r.Enabled {
				n++
			}
		}
		return n
	}
	out, in := count(rules.Output), count(rules.Input)
	msg := fmt.Sprintf("%d output and %d input rules enabled", out, in)
	return Check{Name: "rules", Pass: out+in > 0, Message: msg}
}

// checkBackend enumerates devices and predicts the choice for each class.
func checkBackend(ctx context.Context, cfg config.Config, backend coordinator.Backend) []Check {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	devices, err := backend.Enumerate(ctx)
	if err != nil {
		return []Check{{Name: "audio.backend", Pass: false, Message: fmt.Sprintf("%s: %v", cfg.Audio.Backend, err)}}
	}

	checks := []Check{{
		Name:    "audio.backend",
		Pass:    true,
		Message: fmt.Sprintf("%s: %d devices", cfg.Audio.Backend, len(devices)),
	}}
	for _, class := range device.Classes {
		checks = append(checks, predict(ctx, backend, devices, cfg.Rules, class))
	}
	return checks
}

// predict reports what an evaluation would do right now. Having no eligible
// device is not a failure; it only means nothing would change.
func predict(ctx context.Context, backend coordinator.Backend, devices []device.AudioDevice, rules device.RuleSet, class device.Class) Check {
	name := "audio." + class.String()
	current, _, err := backend.CurrentDefault(ctx, class)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("read default: %v", err)}
	}

	decision := priority.Decide(devices, rules.For(class), class, current)
	switch decision.Kind {
	case priority.DecisionNoEligible:
		return Check{Name: name, Pass: true, Message: "no device matches a rule; default left unchanged"}
	case priority.DecisionNoChange:
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%q already selected (weight %d)", decision.Device.Name, decision.Weight)}
	default:
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("would switch to %q (weight %d, %s)", decision.Device.Name, decision.Weight, decision.Reason)}
	}
}

// checkDaemon reports whether a daemon owns the control socket. Not running is informational.
func checkDaemon(ctx context.Context) Check {
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return Check{Name: "daemon", Pass: true, Message: "not running (no runtime dir)"}
	}
	alive, err := ipc.Probe(ctx, path, 500*time.Millisecond)
	if err != nil {
		return Check{Name: "daemon", Pass: false, Message: fmt.Sprintf("socket %s unresponsive: %v", path, err)}
	}
	if !alive {
		return Check{Name: "daemon", Pass: true, Message: "not running"}
	}
	return Check{Name: "daemon", Pass: true, Message: fmt.Sprintf("running at %s", path)}
}

// checkMetricsEndpoint probes the configured Prometheus endpoint.
func checkMetricsEndpoint(cfg config.Config) Check {
	base := strings.TrimSpace(cfg.Metrics.Listen)
	if base == "" {
		return Check{Name: "metrics", Pass: false, Message: "metrics.listen is empty"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := strings.TrimRight(base, "/") + "/metrics"
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return Check{Name: "metrics", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "metrics", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	if !strings.Contains(string(body), "audiomon_") {
		return Check{Name: "metrics", Pass: true, Message: fmt.Sprintf("HTTP %d from %s (no audiomon series yet)", resp.StatusCode, url)}
	}

	return Check{Name: "metrics", Pass: true, Message: fmt.Sprintf("serving at %s", url)}
}
