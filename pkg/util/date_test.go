package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeCrossesMonthAndDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	from := time.Date(2025, 3, 29, 15, 0, 0, 0, loc)
	days := DateRange(from, 4)
	require.Len(t, days, 4)
	want := []string{"2025-03-29", "2025-03-30", "2025-03-31", "2025-04-01"}
	for i, d := range days {
		assert.Equal(t, want[i], d.Format(time.DateOnly))
		assert.Zero(t, d.Hour())
	}
	assert.Nil(t, DateRange(from, 0))
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 30, ParseIntDefault("", 30))
	assert.Equal(t, 30, ParseIntDefault("abc", 30))
	assert.Equal(t, 7, ParseIntDefault("7", 30))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.24, Round2(1.235000001))
	assert.Equal(t, -0.5, Round2(-0.499))
	assert.Equal(t, 4000000.0, Round2(4000000))
}
