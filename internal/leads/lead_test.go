package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusContacted, true},
		{StatusNew, StatusQualified, true},
		{StatusNew, StatusLost, true},
		{StatusNew, StatusConverted, false},
		{StatusContacted, StatusQualified, true},
		{StatusContacted, StatusLost, true},
		{StatusContacted, StatusNew, false},
		{StatusQualified, StatusConverted, true},
		{StatusQualified, StatusContacted, true},
		{StatusQualified, StatusLost, true},
		{StatusLost, StatusNew, true},
		{StatusLost, StatusQualified, false},
		{StatusConverted, StatusNew, false},
		{StatusConverted, StatusLost, false},
		{StatusNew, StatusNew, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("qualified")
	require.NoError(t, err)
	assert.Equal(t, StatusQualified, s)

	_, err = ParseStatus("won")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ParseStatus("")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFilterNormalized(t *testing.T) {
	assert.Equal(t, Filter{Limit: DefaultListLimit}, Filter{}.Normalized())
	assert.Equal(t, Filter{Limit: MaxListLimit, Offset: 0}, Filter{Limit: 10000, Offset: -5}.Normalized())
	assert.Equal(t, Filter{Status: StatusLost, Limit: 7, Offset: 14}, Filter{Status: StatusLost, Limit: 7, Offset: 14}.Normalized())
}

func TestDefaultProjectName(t *testing.T) {
	assert.Equal(t, "Engines Ltd project", defaultProjectName(&Lead{Name: "Ada", Company: "Engines Ltd"}))
	assert.Equal(t, "Ada project", defaultProjectName(&Lead{Name: "Ada"}))
}
