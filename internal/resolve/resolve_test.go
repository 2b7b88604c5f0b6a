package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(names ...string) []AppInfo {
	apps := make([]AppInfo, len(names))
	for i, name := range names {
		apps[i] = AppInfo{Name: name, PID: int32(1000 + i)}
	}
	return apps
}

func TestFindExactMatch(t *testing.T) {
	apps := snapshot("Slack", "Firefox", "Terminal")

	result := Find("Slack", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, "Slack", result.App.Name)
	assert.Equal(t, MatchExact, result.Type)
}

func TestFindExactIsCaseInsensitive(t *testing.T) {
	apps := snapshot("Slack", "Firefox")

	result := Find("slack", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, "Slack", result.App.Name)
	assert.Equal(t, MatchExact, result.Type)
}

func TestFindPrefixMatch(t *testing.T) {
	apps := snapshot("Slack", "Firefox")

	result := Find("Sla", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, "Slack", result.App.Name)
	assert.Equal(t, MatchPrefix, result.Type)
}

func TestFindPrefixTieBreaksAlphabetically(t *testing.T) {
	apps := snapshot("Ab", "Aa")

	result := Find("A", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, "Aa", result.App.Name)
	assert.Equal(t, MatchPrefix, result.Type)
}

func TestFindFuzzyMatch(t *testing.T) {
	apps := snapshot("Slack", "Firefox")

	result := Find("Slak", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, "Slack", result.App.Name)
	assert.Equal(t, MatchFuzzy, result.Type)
	assert.Equal(t, 1, result.Distance)
}

func TestFindFuzzyPrefersMinimumDistance(t *testing.T) {
	apps := snapshot("Slick", "Slak")

	// "Slck" is distance 1 from "Slak" and "Slick", alphabetical breaks it.
	result := Find("Slck", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, MatchFuzzy, result.Type)
	assert.Equal(t, "Slak", result.App.Name)
}

func TestFindFuzzyRespectsThreshold(t *testing.T) {
	apps := snapshot("Slack")

	assert.Nil(t, Find("Slxxx", apps, 2))
	assert.NotNil(t, Find("Slxxx", apps, 3))
}

func TestFindThresholdZeroDisablesFuzzy(t *testing.T) {
	apps := snapshot("Slack")

	// Distance 1 away, but the fuzzy tier admits nothing at threshold 0.
	assert.Nil(t, Find("Slak", apps, 0))

	result := Find("Slak", apps, 1)
	require.NotNil(t, result)
	assert.Equal(t, MatchFuzzy, result.Type)
	assert.Equal(t, 1, result.Distance)
}

func TestFindExactWinsOverPrefix(t *testing.T) {
	// "Code" is both an exact match and a prefix of "Codeium".
	apps := snapshot("Codeium", "Code")

	result := Find("code", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, "Code", result.App.Name)
	assert.Equal(t, MatchExact, result.Type)
}

func TestFindPrefixWinsOverFuzzy(t *testing.T) {
	// "Term" prefixes "Terminal" and is within distance 2 of "Team".
	apps := snapshot("Team", "Terminal")

	result := Find("Term", apps, 2)
	require.NotNil(t, result)
	assert.Equal(t, "Terminal", result.App.Name)
	assert.Equal(t, MatchPrefix, result.Type)
}

func TestFindNoMatch(t *testing.T) {
	apps := snapshot("Slack", "Firefox")

	assert.Nil(t, Find("Zzzz999", apps, 2))
}

func TestFindEmptySnapshot(t *testing.T) {
	assert.Nil(t, Find("Slack", nil, 2))
}

func TestFindIsDeterministic(t *testing.T) {
	apps := snapshot("Beta", "Bravo", "Brake")

	first := Find("Br", apps, 2)
	require.NotNil(t, first)
	for i := 0; i < 10; i++ {
		again := Find("Br", apps, 2)
		require.NotNil(t, again)
		assert.Equal(t, first.App.Name, again.App.Name)
		assert.Equal(t, first.Type, again.Type)
	}
}

func TestDescribe(t *testing.T) {
	r := &MatchResult{App: AppInfo{Name: "Slack"}, Type: MatchExact}
	assert.Equal(t, `"Slack" (exact match)`, r.Describe())

	r.Type = MatchFuzzy
	assert.Contains(t, r.Describe(), "fuzzy")
}
