package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rbright/audiomon/internal/device"
)

const minPollInterval = 100 * time.Millisecond

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.General.PollInterval < minPollInterval {
		return nil, fmt.Errorf("general.poll_interval must be >= %s", minPollInterval)
	}
	if _, ok := logLevels[cfg.General.LogLevel]; !ok {
		return nil, fmt.Errorf("general.log_level must be one of: debug, info, warn, error")
	}

	switch cfg.Audio.Backend {
	case BackendPulse, BackendMiniaudio:
	default:
		return nil, fmt.Errorf("audio.backend must be one of: pulse, miniaudio")
	}
	if cfg.Audio.Backend == BackendMiniaudio && cfg.Audio.Server != "" {
		warnings = append(warnings, Warning{Message: "audio.server is ignored when audio.backend=miniaudio"})
	}
	if cfg.Audio.Backend == BackendMiniaudio {
		warnings = append(warnings, Warning{Message: "audio.backend=miniaudio cannot change the default device; decisions are logged only"})
	}

	switch cfg.Notifications.Backend {
	case NotifyDesktop, NotifyBeeep:
		if strings.TrimSpace(cfg.Notifications.AppName) == "" {
			return nil, fmt.Errorf("notifications.app_name must not be empty when notifications.backend=%s", cfg.Notifications.Backend)
		}
	case NotifyNone:
	default:
		return nil, fmt.Errorf("notifications.backend must be one of: desktop, beeep, none")
	}
	if cfg.Notifications.TimeoutMS < 0 {
		return nil, fmt.Errorf("notifications.timeout_ms must be >= 0")
	}

	if listen := cfg.Metrics.Listen; listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("metrics.listen %q: %w", listen, err)
		}
	}

	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	warnings = append(warnings, ruleWarnings("output_devices", cfg.Rules.Output)...)
	warnings = append(warnings, ruleWarnings("input_devices", cfg.Rules.Input)...)

	return warnings, nil
}

// ruleWarnings flags empty rule lists and rules an earlier identical rule always shadows.
func ruleWarnings(key string, rules []device.Rule) []Warning {
	if len(rules) == 0 {
		return []Warning{{Message: fmt.Sprintf("%s is empty; no device of this class will be selected", key)}}
	}

	var warnings []Warning
	for i, r := range rules {
		if !r.Enabled {
			continue
		}
		for j := 0; j < i; j++ {
			prev := rules[j]
			if prev.Enabled && prev.Name == r.Name && prev.MatchType == r.MatchType {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("%s[%d] (%s %q) is shadowed by %s[%d]", key, i, r.MatchType, r.Name, key, j)})
				break
			}
		}
	}
	return warnings
}
