// Package priority chooses the best available device for a class from weighted rules.
//
// Everything here is pure: the same inputs always produce the same decision and
// nothing performs I/O.
package priority

import (
	"fmt"

	"github.com/rbright/audiomon/internal/device"
)

// Candidate is the winning device together with the rule that scored it.
type Candidate struct {
	Device device.AudioDevice
	Weight uint32
	Rule   int
}

// DecisionKind is the outcome class of Decide.
type DecisionKind string

const (
	DecisionSwitch     DecisionKind = "switch"
	DecisionNoChange   DecisionKind = "no_change"
	DecisionNoEligible DecisionKind = "no_eligible"
)

// Reason explains why a switch was proposed.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInitial             Reason = "initial"
	ReasonHigherPriority      Reason = "higher_priority"
	ReasonPreviousUnavailable Reason = "previous_unavailable"
	ReasonManual              Reason = "manual"
)

// Decision is the result of one evaluation for one class.
type Decision struct {
	Kind   DecisionKind
	Class  device.Class
	Device device.AudioDevice
	Weight uint32
	Rule   int
	Reason Reason
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionSwitch:
		return fmt.Sprintf("switch %s to %q (weight %d, %s)", d.Class, d.Device.Name, d.Weight, d.Reason)
	case DecisionNoChange:
		return fmt.Sprintf("keep %s %q (weight %d)", d.Class, d.Device.Name, d.Weight)
	default:
		return fmt.Sprintf("no eligible %s device", d.Class)
	}
}

// Score returns the weight of the first enabled rule matching name, and its index.
func Score(name string, rules []device.Rule) (uint32, int, bool) {
	for i, r := range rules {
		if r.Matches(name) {
			return r.Weight, i, true
		}
	}
	return 0, -1, false
}

// Select returns the highest scoring device of class. Devices no rule matches are
// never eligible. Ties go to the device enumerated first.
func Select(available []device.AudioDevice, rules []device.Rule, class device.Class) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for _, d := range available {
		if !d.Class.Includes(class) {
			continue
		}
		weight, rule, ok := Score(d.Name, rules)
		if !ok {
			continue
		}
		if !found || weight > best.Weight {
			best = Candidate{Device: d, Weight: weight, Rule: rule}
			found = true
		}
	}
	return best, found
}

// Decide compares the selected candidate with the device currently believed to be
// the default. An empty current means there is no belief yet.
func Decide(available []device.AudioDevice, rules []device.Rule, class device.Class, current string) Decision {
	candidate, ok := Select(available, rules, class)
	if !ok {
		return Decision{Kind: DecisionNoEligible, Class: class, Rule: -1}
	}

	decision := Decision{
		Class:  class,
		Device: candidate.Device,
		Weight: candidate.Weight,
		Rule:   candidate.Rule,
	}
	if candidate.Device.ID == current {
		decision.Kind = DecisionNoChange
		return decision
	}

	decision.Kind = DecisionSwitch
	switch {
	case current == "":
		decision.Reason = ReasonInitial
	case stillAvailable(available, class, current):
		decision.Reason = ReasonHigherPriority
	default:
		decision.Reason = ReasonPreviousUnavailable
	}
	return decision
}

func stillAvailable(available []device.AudioDevice, class device.Class, id string) bool {
	for _, d := range available {
		if d.ID == id && d.Class.Includes(class) {
			return true
		}
	}
	return false
}
