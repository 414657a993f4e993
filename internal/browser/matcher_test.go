// File: internal/browser/matcher_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablepilot/api/schemas"
)

func TestTimeLabelFromISO(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		match bool
	}{
		{"2024-05-01T19:00:00", "7:00 PM", true},
		{"2024-05-01T19:30", "7:30 PM", true},
		{"19:00", "7:00 PM", true},
		{"08:15:00", "8:15 AM", true},
		{"12:00", "12:00 PM", true},
		{"00:30", "12:30 AM", true},
		{"7:00 PM", "", false},
		{"tonight", "", false},
	}
	for _, tc := range tests {
		got, ok := TimeLabelFromISO(tc.in)
		assert.Equal(t, tc.match, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestBuildMatcherScriptPerStrategy(t *testing.T) {
	for _, strategy := range schemas.StrategyOrder {
		script, err := buildMatcherScript(schemas.TargetSpec{Strategy: strategy, Value: "v"}, "q1")
		require.NoError(t, err, "strategy %s", strategy)
		assert.Contains(t, script, refAttr)
		assert.Contains(t, script, "q1")
	}

	_, err := buildMatcherScript(schemas.TargetSpec{Strategy: "xpath", Value: "v"}, "q1")
	require.Error(t, err)
}

func TestBuildMatcherScriptStripsIDHash(t *testing.T) {
	script, err := buildMatcherScript(schemas.TargetSpec{
		Strategy: schemas.StrategyID, Value: "#restaurant-search",
	}, "q1")
	require.NoError(t, err)
	assert.Contains(t, script, `"restaurant-search"`)
	assert.NotContains(t, script, `"#restaurant-search"`)
}

func TestJSStringEscapesQuotes(t *testing.T) {
	assert.Equal(t, `"Ruth's \"Chris\""`, jsString(`Ruth's "Chris"`))
	assert.Equal(t, `["a","b"]`, jsStringArray([]string{"a", "b"}))
}
