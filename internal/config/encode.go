package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/rbright/audiomon/internal/device"
)

const fileHeader = `# audiomon configuration
#
# Rules are evaluated top to bottom; the first rule matching a device name
# assigns its weight. match_type: exact, contains, starts_with, ends_with.

`

// Encode writes cfg as TOML that Parse accepts back unchanged.
func Encode(w io.Writer, cfg Config) error {
	if _, err := io.WriteString(w, fileHeader); err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(fromConfig(cfg))
}

// WriteDefault writes the default config to path, refusing to overwrite unless force is set.
func WriteDefault(path string, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return &Error{Op: "write", Path: path, Err: fmt.Errorf("file exists (use --force to overwrite)")}
		}
		return &Error{Op: "write", Path: path, Err: err}
	}

	if err := Encode(f, Default()); err != nil {
		_ = f.Close()
		return &Error{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}
	return nil
}

func fromConfig(cfg Config) tomlConfig {
	pollInterval := cfg.General.PollInterval.String()
	return tomlConfig{
		General: &tomlGeneral{
			PollInterval:        &pollInterval,
			LogLevel:            &cfg.General.LogLevel,
			RespectManualSwitch: &cfg.General.RespectManualSwitch,
		},
		Audio: &tomlAudio{
			Backend: &cfg.Audio.Backend,
			Server:  &cfg.Audio.Server,
		},
		Notifications: &tomlNotifications{
			Backend:                &cfg.Notifications.Backend,
			AppName:                &cfg.Notifications.AppName,
			TimeoutMS:              &cfg.Notifications.TimeoutMS,
			ShowDeviceAvailability: &cfg.Notifications.ShowDeviceAvailability,
			ShowSwitchingActions:   &cfg.Notifications.ShowSwitchingActions,
		},
		Metrics:       &tomlMetrics{Listen: &cfg.Metrics.Listen},
		OutputDevices: toTOMLRules(cfg.Rules.Output),
		InputDevices:  toTOMLRules(cfg.Rules.Input),
	}
}

func toTOMLRules(rules []device.Rule) []tomlRule {
	out := make([]tomlRule, 0, len(rules))
	for _, r := range rules {
		name := r.Name
		weight := int64(r.Weight)
		matchType := r.MatchType.String()
		enabled := r.Enabled
		out = append(out, tomlRule{Name: &name, Weight: &weight, MatchType: &matchType, Enabled: &enabled})
	}
	return out
}
