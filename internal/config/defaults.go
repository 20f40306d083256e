package config

import (
	"time"

	"github.com/rbright/audiomon/internal/device"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		General: GeneralConfig{
			PollInterval: 5 * time.Second,
			LogLevel:     "info",
		},
		Audio: Audio{Backend: BackendPulse},
		Notifications: NotificationConfig{
			Backend:              NotifyDesktop,
			AppName:              "audiomon",
			TimeoutMS:            4000,
			ShowSwitchingActions: true,
		},
		Rules: device.RuleSet{
			Output: []device.Rule{
				{Name: "AirPods", MatchType: device.MatchContains, Weight: 100, Enabled: true},
				{Name: "Built-in Audio", MatchType: device.MatchStartsWith, Weight: 10, Enabled: true},
			},
			Input: []device.Rule{
				{Name: "AirPods", MatchType: device.MatchContains, Weight: 100, Enabled: true},
				{Name: "Built-in Audio", MatchType: device.MatchStartsWith, Weight: 10, Enabled: true},
			},
		},
	}
}
