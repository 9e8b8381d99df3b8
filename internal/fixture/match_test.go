package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeResult(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"2  -  1", "2 - 1", true},
		{"2-1", "2 - 1", true},
		{"0 – 3", "0 - 3", true},
		{" 10 -2 ", "10 - 2", true},
		{"Final: 3 - 3 (pen.)", "3 - 3", true},
		{"-", "", false},
		{"", "", false},
		{"vs", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeResult(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKickoff(t *testing.T) {
	k, err := ParseKickoff("19:30")
	require.NoError(t, err)
	assert.Equal(t, Kickoff{Hour: 19, Minute: 30}, k)
	assert.Equal(t, "19:30", k.String())

	k, err = ParseKickoff("09:05")
	require.NoError(t, err)
	assert.Equal(t, "09:05", k.String())

	for _, bad := range []string{"", "1930", "24:00", "12:60", "ab:cd", "-1:10"} {
		_, err := ParseKickoff(bad)
		assert.Error(t, err, "ParseKickoff(%q)", bad)
	}
}

func TestMatch_HasResult(t *testing.T) {
	m := Match{Day: 16, Month: 8, Teams: "Mallorca vs FC Barcelona"}
	assert.False(t, m.HasResult())

	m.Result = "0 - 3"
	assert.True(t, m.HasResult())
	assert.Contains(t, m.String(), "0 - 3")
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "FC Barcelona vs Girona", CollapseSpace("  FC   Barcelona\n vs\tGirona "))
	assert.Equal(t, "", CollapseSpace(" \n "))
}
