package features

import (
	"sort"

	"WasteFlow/internal/domain/models"
)

// Rolling window lengths used as model inputs.
const (
	ShortWindow = 7
	LongWindow  = 30
)

// BuildFeatures attaches trailing 7- and 30-observation means to each point,
// computed per (region, material) group in date order. Windows include the
// current observation and use whatever history exists (minimum period 1).
// The input is not modified; output is date-sorted and has the same length.
func BuildFeatures(points []models.TimeSeriesPoint) []models.FeatureRow {
	sorted := make([]models.TimeSeriesPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	type groupKey struct{ region, material string }
	short := make(map[groupKey]*Window)
	long := make(map[groupKey]*Window)

	out := make([]models.FeatureRow, len(sorted))
	for i, p := range sorted {
		k := groupKey{p.Region, p.MaterialType}
		sw, ok := short[k]
		if !ok {
			sw = NewWindow(ShortWindow)
			short[k] = sw
			long[k] = NewWindow(LongWindow)
		}
		lw := long[k]
		sw.Push(p.VolumeTons)
		lw.Push(p.VolumeTons)
		out[i] = models.FeatureRow{
			TimeSeriesPoint: p,
			Prev7DayAvg:     sw.Mean(),
			Prev30DayAvg:    lw.Mean(),
		}
	}
	return out
}

// Window is a fixed-capacity trailing mean.
type Window struct {
	buf  []float64
	next int
	n    int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]float64, size)}
}

// Push adds v, evicting the oldest value once the window is full.
func (w *Window) Push(v float64) {
	if w.n < len(w.buf) {
		w.n++
	}
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
}

// Mean returns the average of the values currently held, or 0 when empty.
func (w *Window) Mean() float64 {
	if w.n == 0 {
		return 0
	}
	// Summed oldest-first so the result matches a plain mean over the window.
	sum := 0.0
	start := (w.next - w.n + len(w.buf)) % len(w.buf)
	for i := 0; i < w.n; i++ {
		sum += w.buf[(start+i)%len(w.buf)]
	}
	return sum / float64(w.n)
}

// Len is the number of values held.
func (w *Window) Len() int { return w.n }
