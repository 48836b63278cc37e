package models

// DateLayout is the calendar-day format used for series points, predictions and listings.
const DateLayout = "2006-01-02"

// TimeSeriesPoint is one daily observation of collected volume for a material in a region.
type TimeSeriesPoint struct {
	Date         string  `json:"date"`
	DayOfWeek    int     `json:"day_of_week"` // Monday=0 .. Sunday=6
	Month        int     `json:"month"`
	Region       string  `json:"region"`
	MaterialType string  `json:"material_type"`
	VolumeTons   float64 `json:"volume_tons"`
}

// FeatureRow is a TimeSeriesPoint with trailing rolling averages of its (region, material) group.
type FeatureRow struct {
	TimeSeriesPoint
	Prev7DayAvg  float64 `json:"prev_7day_avg"`
	Prev30DayAvg float64 `json:"prev_30day_avg"`
}

// Dataset is the output of a history load: the points plus the region and
// material sets fixed for the lifetime of the models trained on it.
type Dataset struct {
	Points    []TimeSeriesPoint
	Regions   []string
	Materials []string
	Source    string // "csv" or "synthetic"
}
