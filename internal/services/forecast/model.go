package forecast

import (
	"time"

	"WasteFlow/internal/domain/models"
	"WasteFlow/internal/services/ml"
)

// FeatureNames is the column order of every model input.
var FeatureNames = []string{"day_of_week", "month", "prev_7day_avg", "prev_30day_avg", "region_code"}

// MaterialModel is the trained regressor for one material together with the
// region list its region codes index into. It is never mutated after training
// or loading, so callers may hold it without the bank lock.
type MaterialModel struct {
	Material  string     `json:"material"`
	Features  []string   `json:"features"`
	Regions   []string   `json:"regions"`
	Rows      int        `json:"rows"`
	TrainR2   float64    `json:"train_r2"`
	TestR2    float64    `json:"test_r2"`
	TrainedAt time.Time  `json:"trained_at"`
	Forest    *ml.Forest `json:"forest"`
}

// RegionCode returns the index of region in the model's region list.
func (m *MaterialModel) RegionCode(region string) (int, bool) {
	for i, r := range m.Regions {
		if r == region {
			return i, true
		}
	}
	return 0, false
}

// Predict runs the forest on one feature vector.
func (m *MaterialModel) Predict(fv models.FeatureVector) float64 {
	return m.Forest.Predict(fv.Values())
}

func (m *MaterialModel) valid() bool {
	return m.Material != "" && m.Forest != nil && len(m.Forest.Trees) > 0 &&
		m.Forest.NFeatures == len(FeatureNames)
}
