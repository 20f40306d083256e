package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	strduration "github.com/xhit/go-str2duration/v2"

	"github.com/rbright/audiomon/internal/device"
)

type tomlConfig struct {
	General       *tomlGeneral       `toml:"general,omitempty"`
	Audio         *tomlAudio         `toml:"audio,omitempty"`
	Notifications *tomlNotifications `toml:"notifications,omitempty"`
	Metrics       *tomlMetrics       `toml:"metrics,omitempty"`
	OutputDevices []tomlRule         `toml:"output_devices"`
	InputDevices  []tomlRule         `toml:"input_devices"`
}

type tomlGeneral struct {
	PollInterval        *string `toml:"poll_interval,omitempty"`
	LogLevel            *string `toml:"log_level,omitempty"`
	RespectManualSwitch *bool   `toml:"respect_manual_switch,omitempty"`

	CheckIntervalMS *int64 `toml:"check_interval_ms,omitempty"`
	PollIntervalMS  *int64 `toml:"poll_interval_ms,omitempty"`
	DaemonMode      *bool  `toml:"daemon_mode,omitempty"`
}

type tomlAudio struct {
	Backend *string `toml:"backend,omitempty"`
	Server  *string `toml:"server,omitempty"`
}

type tomlNotifications struct {
	Backend                *string `toml:"backend,omitempty"`
	AppName                *string `toml:"app_name,omitempty"`
	TimeoutMS              *int    `toml:"timeout_ms,omitempty"`
	ShowDeviceAvailability *bool   `toml:"show_device_availability,omitempty"`
	ShowSwitchingActions   *bool   `toml:"show_switching_actions,omitempty"`

	ShowDeviceChanges *bool `toml:"show_device_changes,omitempty"`
}

type tomlMetrics struct {
	Listen *string `toml:"listen,omitempty"`
}

type tomlRule struct {
	Name      *string `toml:"name"`
	Weight    *int64  `toml:"weight"`
	MatchType *string `toml:"match_type"`
	Enabled   *bool   `toml:"enabled"`
}

// Parse decodes TOML content on top of base and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	var payload tomlConfig
	md, err := toml.Decode(content, &payload)
	if err != nil {
		return Config{}, nil, wrapDecodeError(err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg, md)
	if err != nil {
		return Config{}, nil, err
	}
	for _, key := range md.Undecoded() {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("unknown key %q ignored", key.String())})
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func wrapDecodeError(err error) error {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("line %d: %s", perr.Position.Line, perr.Message)
	}
	return err
}

func (payload tomlConfig) applyTo(cfg *Config, md toml.MetaData) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if g := payload.General; g != nil {
		if g.PollInterval != nil {
			d, err := strduration.ParseDuration(strings.TrimSpace(*g.PollInterval))
			if err != nil {
				return nil, fmt.Errorf("general.poll_interval: %w", err)
			}
			cfg.General.PollInterval = d
		}
		for _, legacy := range []struct {
			key   string
			value *int64
		}{
			{key: "check_interval_ms", value: g.CheckIntervalMS},
			{key: "poll_interval_ms", value: g.PollIntervalMS},
		} {
			if legacy.value == nil {
				continue
			}
			if g.PollInterval != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("general.%s ignored; general.poll_interval is set", legacy.key)})
				continue
			}
			if *legacy.value < 0 {
				return nil, fmt.Errorf("general.%s must be >= 0", legacy.key)
			}
			cfg.General.PollInterval = time.Duration(*legacy.value) * time.Millisecond
			warnings = append(warnings, Warning{Message: fmt.Sprintf("general.%s is deprecated; use general.poll_interval = %q", legacy.key, cfg.General.PollInterval.String())})
		}
		if g.DaemonMode != nil {
			warnings = append(warnings, Warning{Message: "general.daemon_mode is ignored; run `audiomon run` under a service manager"})
		}
		if g.LogLevel != nil {
			cfg.General.LogLevel = strings.ToLower(strings.TrimSpace(*g.LogLevel))
		}
		if g.RespectManualSwitch != nil {
			cfg.General.RespectManualSwitch = *g.RespectManualSwitch
		}
	}

	if a := payload.Audio; a != nil {
		if a.Backend != nil {
			cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(*a.Backend))
		}
		if a.Server != nil {
			cfg.Audio.Server = strings.TrimSpace(*a.Server)
		}
	}

	if n := payload.Notifications; n != nil {
		if n.Backend != nil {
			cfg.Notifications.Backend = strings.ToLower(strings.TrimSpace(*n.Backend))
		}
		if n.AppName != nil {
			cfg.Notifications.AppName = strings.TrimSpace(*n.AppName)
		}
		if n.TimeoutMS != nil {
			cfg.Notifications.TimeoutMS = *n.TimeoutMS
		}
		if n.ShowDeviceChanges != nil {
			if n.ShowDeviceAvailability == nil {
				cfg.Notifications.ShowDeviceAvailability = *n.ShowDeviceChanges
			}
			warnings = append(warnings, Warning{Message: "notifications.show_device_changes is deprecated; use notifications.show_device_availability"})
		}
		if n.ShowDeviceAvailability != nil {
			cfg.Notifications.ShowDeviceAvailability = *n.ShowDeviceAvailability
		}
		if n.ShowSwitchingActions != nil {
			cfg.Notifications.ShowSwitchingActions = *n.ShowSwitchingActions
		}
	}

	if m := payload.Metrics; m != nil && m.Listen != nil {
		cfg.Metrics.Listen = strings.TrimSpace(*m.Listen)
	}

	if md.IsDefined("output_devices") {
		rules, err := parseRules("output_devices", payload.OutputDevices)
		if err != nil {
			return nil, err
		}
		cfg.Rules.Output = rules
	}
	if md.IsDefined("input_devices") {
		rules, err := parseRules("input_devices", payload.InputDevices)
		if err != nil {
			return nil, err
		}
		cfg.Rules.Input = rules
	}

	return warnings, nil
}

func parseRules(key string, raw []tomlRule) ([]device.Rule, error) {
	rules := make([]device.Rule, 0, len(raw))
	for i, r := range raw {
		rule, err := r.toRule()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r tomlRule) toRule() (device.Rule, error) {
	if r.Name == nil || *r.Name == "" {
		return device.Rule{}, errors.New("name is required")
	}
	if r.MatchType == nil {
		return device.Rule{}, fmt.Errorf("rule %q: match_type is required", *r.Name)
	}
	matchType, err := device.ParseMatchType(*r.MatchType)
	if err != nil {
		return device.Rule{}, fmt.Errorf("rule %q: %w", *r.Name, err)
	}

	var weight uint32
	if r.Weight != nil {
		if *r.Weight < 0 || *r.Weight > math.MaxUint32 {
			return device.Rule{}, fmt.Errorf("rule %q: weight %d out of range 0..%d", *r.Name, *r.Weight, uint32(math.MaxUint32))
		}
		weight = uint32(*r.Weight)
	}

	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return device.Rule{Name: *r.Name, MatchType: matchType, Weight: weight, Enabled: enabled}, nil
}
