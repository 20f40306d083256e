package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name   string
		rule   Rule
		device string
		want   bool
	}{
		{name: "exact hit", rule: Rule{Name: "AirPods Pro", MatchType: MatchExact, Enabled: true}, device: "AirPods Pro", want: true},
		{name: "exact miss", rule: Rule{Name: "AirPods", MatchType: MatchExact, Enabled: true}, device: "AirPods Pro", want: false},
		{name: "contains", rule: Rule{Name: "Pods", MatchType: MatchContains, Enabled: true}, device: "AirPods Pro", want: true},
		{name: "starts with", rule: Rule{Name: "Air", MatchType: MatchStartsWith, Enabled: true}, device: "AirPods Pro", want: true},
		{name: "ends with", rule: Rule{Name: "Pro", MatchType: MatchEndsWith, Enabled: true}, device: "AirPods Pro", want: true},
		{name: "case sensitive", rule: Rule{Name: "airpods", MatchType: MatchContains, Enabled: true}, device: "AirPods Pro", want: false},
		{name: "disabled", rule: Rule{Name: "AirPods Pro", MatchType: MatchExact, Enabled: false}, device: "AirPods Pro", want: false},
		{name: "zero match type", rule: Rule{Name: "AirPods Pro", Enabled: true}, device: "AirPods Pro", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.rule.Matches(tc.device))
		})
	}
}

func TestParseMatchType(t *testing.T) {
	for raw, want := range map[string]MatchType{
		"exact":       MatchExact,
		"Contains":    MatchContains,
		"starts_with": MatchStartsWith,
		"startswith":  MatchStartsWith,
		" ends_with ": MatchEndsWith,
		"endswith":    MatchEndsWith,
	} {
		got, err := ParseMatchType(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseMatchType("regex")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown match_type")
}

func TestMatchTypeTextRoundTrip(t *testing.T) {
	text, err := MatchStartsWith.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "starts_with", string(text))

	var m MatchType
	require.NoError(t, m.UnmarshalText([]byte("ends_with")))
	require.Equal(t, MatchEndsWith, m)

	_, err = MatchType(42).MarshalText()
	require.Error(t, err)
}

func TestRuleSetValidateReportsPosition(t *testing.T) {
	rs := RuleSet{
		Output: []Rule{{Name: "AirPods", MatchType: MatchContains, Enabled: true}},
		Input:  []Rule{{Name: "Mic", MatchType: MatchExact}, {Name: "", MatchType: MatchExact}},
	}

	err := rs.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "input_devices[1]")
}

func TestRuleSetForAndClone(t *testing.T) {
	rs := RuleSet{
		Output: []Rule{{Name: "Speakers", MatchType: MatchExact, Weight: 10, Enabled: true}},
		Input:  []Rule{{Name: "Mic", MatchType: MatchExact, Weight: 5, Enabled: true}},
	}

	require.Equal(t, rs.Output, rs.For(ClassOutput))
	require.Equal(t, rs.Input, rs.For(ClassInput))
	require.Nil(t, rs.For(ClassInputOutput))

	clone := rs.Clone()
	clone.Output[0].Weight = 99
	require.Equal(t, uint32(10), rs.Output[0].Weight)
}

func TestClassIncludesAndParse(t *testing.T) {
	require.True(t, ClassInputOutput.Includes(ClassInput))
	require.True(t, ClassInputOutput.Includes(ClassOutput))
	require.True(t, ClassOutput.Includes(ClassOutput))
	require.False(t, ClassOutput.Includes(ClassInput))
	require.False(t, ClassOutput.Includes(0))

	c, err := ParseClass("Output")
	require.NoError(t, err)
	require.Equal(t, ClassOutput, c)

	c, err = ParseClass("source")
	require.NoError(t, err)
	require.Equal(t, ClassInput, c)

	_, err = ParseClass("both")
	require.Error(t, err)

	require.Equal(t, "input/output", ClassInputOutput.String())
}

func TestFindByIDOrName(t *testing.T) {
	devices := []AudioDevice{
		{ID: "alsa_output.pci", Name: "Built-in Speakers", Class: ClassOutput},
		{ID: "bluez_output.airpods", Name: "AirPods Pro", Class: ClassOutput},
	}

	d, ok := Find(devices, "AirPods Pro")
	require.True(t, ok)
	require.Equal(t, "bluez_output.airpods", d.ID)

	d, ok = Find(devices, "alsa_output.pci")
	require.True(t, ok)
	require.Equal(t, "Built-in Speakers", d.Name)

	_, ok = FindID(devices, "AirPods Pro")
	require.False(t, ok)
}
