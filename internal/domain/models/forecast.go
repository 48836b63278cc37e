package models

import "time"

// FeatureVector is the model input for a single day.
type FeatureVector struct {
	DayOfWeek    int
	Month        int
	Prev7DayAvg  float64
	Prev30DayAvg float64
	RegionCode   int
}

// Values returns the features in training column order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		float64(f.DayOfWeek),
		float64(f.Month),
		f.Prev7DayAvg,
		f.Prev30DayAvg,
		float64(f.RegionCode),
	}
}

// Prediction is one forecast day.
type Prediction struct {
	Date            string  `json:"date"`
	PredictedVolume float64 `json:"predicted_volume"`
}

// RegionForecast is the per (material, region) entry of a market forecast.
type RegionForecast struct {
	TotalVolumeTons  float64      `json:"total_volume_tons"`
	DailyPredictions []Prediction `json:"daily_predictions"`
}

// MarketForecast maps material -> region -> forecast.
type MarketForecast map[string]map[string]RegionForecast

// SupplyForecast is the response shape for a single material/region forecast.
type SupplyForecast struct {
	Material             string       `json:"material"`
	Region               string       `json:"region"`
	DaysAhead            int          `json:"days_ahead"`
	TotalPredictedVolume float64      `json:"total_predicted_volume"`
	Predictions          []Prediction `json:"predictions"`
}

// TrainReport holds diagnostics for one trained material model.
type TrainReport struct {
	Material string        `json:"material"`
	Rows     int           `json:"rows"`
	TrainR2  float64       `json:"train_r2"`
	TestR2   float64       `json:"test_r2"`
	Duration time.Duration `json:"duration"`
}

// TrainSummary is returned by an explicit training run.
type TrainSummary struct {
	Source    string        `json:"source"`
	Points    int           `json:"points"`
	Regions   []string      `json:"regions"`
	Reports   []TrainReport `json:"reports"`
	TrainedAt time.Time     `json:"trained_at"`
}
