package device

import (
	"errors"
	"fmt"
	"strings"
)

// MatchType selects how a rule pattern is compared to a device name.
type MatchType int

const (
	MatchExact MatchType = iota + 1
	MatchContains
	MatchStartsWith
	MatchEndsWith
)

var matchTypeNames = map[MatchType]string{
	MatchExact:      "exact",
	MatchContains:   "contains",
	MatchStartsWith: "starts_with",
	MatchEndsWith:   "ends_with",
}

func (m MatchType) String() string {
	if name, ok := matchTypeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("match(%d)", int(m))
}

// ParseMatchType accepts the snake_case names and their unseparated spellings.
func ParseMatchType(raw string) (MatchType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "exact":
		return MatchExact, nil
	case "contains":
		return MatchContains, nil
	case "starts_with", "startswith":
		return MatchStartsWith, nil
	case "ends_with", "endswith":
		return MatchEndsWith, nil
	default:
		return 0, fmt.Errorf("unknown match_type %q (want exact, contains, starts_with, ends_with)", raw)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MatchType) MarshalText() ([]byte, error) {
	name, ok := matchTypeNames[m]
	if !ok {
		return nil, fmt.Errorf("invalid match type %d", int(m))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MatchType) UnmarshalText(text []byte) error {
	parsed, err := ParseMatchType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Rule is one weighted name pattern.
type Rule struct {
	Name      string
	MatchType MatchType
	Weight    uint32
	Enabled   bool
}

// Matches applies the rule to a device name. Comparison is case-sensitive.
func (r Rule) Matches(name string) bool {
	if !r.Enabled {
		return false
	}
	switch r.MatchType {
	case MatchExact:
		return name == r.Name
	case MatchContains:
		return strings.Contains(name, r.Name)
	case MatchStartsWith:
		return strings.HasPrefix(name, r.Name)
	case MatchEndsWith:
		return strings.HasSuffix(name, r.Name)
	default:
		return false
	}
}

// Validate rejects rules that can never be evaluated meaningfully.
func (r Rule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name must not be empty")
	}
	if _, ok := matchTypeNames[r.MatchType]; !ok {
		return fmt.Errorf("rule %q: invalid match type %d", r.Name, int(r.MatchType))
	}
	return nil
}

// RuleSet holds the ordered rules for each selectable class.
type RuleSet struct {
	Output []Rule
	Input  []Rule
}

// For returns the rules for class. Combined classes have no rule sequence.
func (rs RuleSet) For(class Class) []Rule {
	switch class {
	case ClassOutput:
		return rs.Output
	case ClassInput:
		return rs.Input
	default:
		return nil
	}
}

// Clone returns a deep copy so callers can treat the result as immutable.
func (rs RuleSet) Clone() RuleSet {
	return RuleSet{
		Output: append([]Rule(nil), rs.Output...),
		Input:  append([]Rule(nil), rs.Input...),
	}
}

// Validate checks every rule and reports the first failure with its position.
func (rs RuleSet) Validate() error {
	for i, r := range rs.Output {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("output_devices[%d]: %w", i, err)
		}
	}
	for i, r := range rs.Input {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("input_devices[%d]: %w", i, err)
		}
	}
	return nil
}
