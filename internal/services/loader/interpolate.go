package loader

import (
	"math"
	"sort"
	"time"
)

// YearlySamples holds tons/day keyed by calendar year.
type YearlySamples map[int]float64

// Interpolate returns the smooth daily baseline for date. Values are blended
// linearly between the surrounding known years at position year+doy/365 and
// held flat before the first and after the last known year.
func Interpolate(samples YearlySamples, date time.Time) float64 {
	if len(samples) == 0 {
		return 0
	}
	years := make([]int, 0, len(samples))
	for y := range samples {
		years = append(years, y)
	}
	sort.Ints(years)

	pos := float64(date.Year()) + float64(date.YearDay())/365.0
	first, last := years[0], years[len(years)-1]
	if pos <= float64(first) {
		return samples[first]
	}
	if pos >= float64(last) {
		return samples[last]
	}

	// largest known year <= date.Year()
	i := sort.SearchInts(years, date.Year()+1) - 1
	lo, hi := years[i], years[i+1]
	alpha := (pos - float64(lo)) / float64(hi-lo)
	return samples[lo] + (samples[hi]-samples[lo])*alpha
}

// WeeklyFactor is the weekend uplift; dayOfWeek uses Monday=0.
func WeeklyFactor(dayOfWeek int) float64 {
	if dayOfWeek >= 5 {
		return 1.2
	}
	return 1.0
}

// SeasonalFactor is a sinusoid over a 365-day period.
func SeasonalFactor(date time.Time, amplitude float64) float64 {
	return 1 + amplitude*math.Sin(2*math.Pi*float64(date.YearDay())/365.0)
}

// DayOfWeek converts time.Weekday (Sunday=0) to Monday=0.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
