package window

import (
	"testing"
	"time"

	"cafenote/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestCutoffFor(t *testing.T) {
	tests := []struct {
		period Period
		back   time.Duration
	}{
		{OneDay, 24 * time.Hour},
		{TwoDays, 48 * time.Hour},
		{ThreeDays, 72 * time.Hour},
		{OneWeek, 7 * 24 * time.Hour},
		{OneMonth, 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			cutoff, err := CutoffFor(tt.period, now)
			require.NoError(t, err)
			assert.Equal(t, now.Add(-tt.back).UnixMilli(), cutoff)
		})
	}
}

func TestCutoffIsMonotonic(t *testing.T) {
	periods := Periods()
	require.Len(t, periods, 5)
	assert.Equal(t, OneDay, periods[0])
	assert.Equal(t, OneMonth, periods[len(periods)-1])

	prev, err := CutoffFor(periods[0], now)
	require.NoError(t, err)
	for _, p := range periods[1:] {
		cutoff, err := CutoffFor(p, now)
		require.NoError(t, err)
		assert.LessOrEqual(t, cutoff, prev, "cutoff for %s should not be newer than the previous period", p)
		prev = cutoff
	}
}

func TestCutoffRejectsMissingPeriod(t *testing.T) {
	_, err := CutoffFor("", now)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = CutoffFor("fortnight", now)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod(" 1Week ")
	require.NoError(t, err)
	assert.Equal(t, OneWeek, p)

	_, err = ParsePeriod("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	_, err = ParsePeriod("2weeks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1day, 2days, 3days, 1week, 1month")
}

func TestWindowContains(t *testing.T) {
	w, err := New(OneDay, now)
	require.NoError(t, err)

	assert.True(t, w.Contains(now.UnixMilli()))
	assert.True(t, w.Contains(w.Cutoff))
	assert.False(t, w.Contains(w.Cutoff-1))
	assert.True(t, w.Contains(0), "missing timestamps stay in window")
}
