package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatsSummary(t *testing.T) {
	in := "total_calls, failed_calls, failure_rate, vehicles_driven, avg_wait\n\"24,210\",5260,21.73,522,4.2\n"
	s, err := ParseStatsSummary([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, "24,210", s.TotalCalls)
	assert.Equal(t, "5260", s.FailedCalls)
	assert.Equal(t, "21.73", s.FailureRate)
	assert.Equal(t, "522", s.VehiclesDriven)
	assert.Equal(t, map[string]string{"avg_wait": "4.2"}, s.Extra)
}

func TestParseStatsSummaryErrors(t *testing.T) {
	tests := map[string]string{
		"header only":    "total_calls,failed_calls,failure_rate,vehicles_driven\n",
		"missing fields": "total_calls,failed_calls\n1,2\n",
		"empty":          "",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStatsSummary([]byte(in))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}
