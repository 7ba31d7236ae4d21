package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ResultStatus
	}{
		{"HIT-RED", StatusHitRed},
		{"hit_yellow", StatusHitYellow},
		{" NO-HIT-GREEN ", StatusNoHitGreen},
		{"TIMEOUT", StatusTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResultStatus(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResultStatus_Unknown(t *testing.T) {
	_, err := ParseResultStatus("PURPLE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown result status")
}

func TestResultStatus_Predicates(t *testing.T) {
	assert.True(t, StatusHitGreen.IsHit())
	assert.False(t, StatusNoHitYellow.IsHit())
	assert.True(t, StatusNoHitYellow.IsNoHit())
	assert.True(t, StatusTimeout.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusHitRed.IsTerminal())
}

func TestNewQualityMeasurement_EmptyComment(t *testing.T) {
	qm := NewQualityMeasurement(DimensionCoverage, "Dekning", "Ja", "")
	assert.Nil(t, qm.Comment)

	qm = NewQualityMeasurement(DimensionCoverage, "Dekning", "Ja", "Kartlagt")
	require.NotNil(t, qm.Comment)
	assert.Equal(t, "Kartlagt", *qm.Comment)
}
