package priority

import (
	"fmt"
	"strings"

	"github.com/rbright/audiomon/internal/device"
)

// DeviceScore is the per-device line of an Explain report.
type DeviceScore struct {
	Device   device.AudioDevice
	Matched  bool
	Weight   uint32
	Rule     int
	RuleName string
	Selected bool
}

// Explain scores every device of class in enumeration order and marks the winner.
func Explain(available []device.AudioDevice, rules []device.Rule, class device.Class) []DeviceScore {
	winner, hasWinner := Select(available, rules, class)

	scores := make([]DeviceScore, 0, len(available))
	for _, d := range available {
		if !d.Class.Includes(class) {
			continue
		}
		entry := DeviceScore{Device: d, Rule: -1}
		if weight, idx, ok := Score(d.Name, rules); ok {
			entry.Matched = true
			entry.Weight = weight
			entry.Rule = idx
			entry.RuleName = fmt.Sprintf("%s %q", rules[idx].MatchType, rules[idx].Name)
		}
		entry.Selected = hasWinner && d.ID == winner.Device.ID
		scores = append(scores, entry)
	}
	return scores
}

// FormatScores renders an Explain report, one device per line.
func FormatScores(scores []DeviceScore) string {
	if len(scores) == 0 {
		return "  (no devices)\n"
	}
	var b strings.Builder
	for _, s := range scores {
		marker := " "
		if s.Selected {
			marker = "*"
		}
		def := ""
		if s.Device.Default {
			def = " [default]"
		}
		if s.Matched {
			fmt.Fprintf(&b, "%s %-40s weight=%-5d rule=%s%s\n", marker, s.Device.Name, s.Weight, s.RuleName, def)
			continue
		}
		fmt.Fprintf(&b, "%s %-40s unmatched%s\n", marker, s.Device.Name, def)
	}
	return b.String()
}
