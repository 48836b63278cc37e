package loader

import (
	"context"
	"math/rand"
	"time"

	"WasteFlow/internal/domain/models"
	domsvc "WasteFlow/internal/domain/service"
)

// Typical metro-scale daily tonnage per material.
var syntheticBaseVolume = map[string]float64{
	"PET":       50,
	"HDPE":      30,
	"PP":        25,
	"Aluminum":  15,
	"Steel":     20,
	"Cardboard": 40,
	"Paper":     35,
}

var syntheticRegionMultiplier = map[string]float64{
	"Mumbai":    1.5,
	"Delhi":     1.4,
	"Bangalore": 1.3,
	"Chennai":   1.1,
	"Kolkata":   1.0,
	"Hyderabad": 1.2,
}

// SyntheticMaterials and SyntheticRegions are the fixed, ordered sets used by the generator.
var (
	SyntheticMaterials = []string{"PET", "HDPE", "PP", "Aluminum", "Steel", "Cardboard", "Paper"}
	SyntheticRegions   = []string{"Mumbai", "Delhi", "Bangalore", "Chennai", "Kolkata", "Hyderabad"}
)

// SyntheticGenerator produces plausible daily volumes when no history is available.
type SyntheticGenerator struct {
	Days       int
	Seed       int64
	NoiseRatio float64
	Now        func() time.Time
}

func NewSyntheticGenerator(days int, seed int64) *SyntheticGenerator {
	if days <= 0 {
		days = 180
	}
	return &SyntheticGenerator{Days: days, Seed: seed, NoiseRatio: 0.1, Now: time.Now}
}

func (g *SyntheticGenerator) Name() string { return "synthetic" }

// festivalFactor lifts Diwali (Oct-Nov) and Holi (Mar-Apr) months.
func festivalFactor(m time.Month) float64 {
	switch m {
	case time.October, time.November:
		return 1.3
	case time.March, time.April:
		return 1.15
	default:
		return 1.0
	}
}

// Load generates Days days of data ending the day before Now.
func (g *SyntheticGenerator) Load(ctx context.Context) (models.Dataset, error) {
	rng := rand.New(rand.NewSource(g.Seed))
	now := g.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -g.Days)

	points := make([]models.TimeSeriesPoint, 0, g.Days*len(SyntheticRegions)*len(SyntheticMaterials))
	for day := 0; day < g.Days; day++ {
		if err := ctx.Err(); err != nil {
			return models.Dataset{}, err
		}
		d := start.AddDate(0, 0, day)
		dow := DayOfWeek(d)
		date := d.Format(models.DateLayout)
		for _, region := range SyntheticRegions {
			for _, material := range SyntheticMaterials {
				v := syntheticBaseVolume[material] * syntheticRegionMultiplier[region] *
					WeeklyFactor(dow) * festivalFactor(d.Month())
				v += rng.NormFloat64() * v * g.NoiseRatio
				if v < 0 {
					v = 0
				}
				points = append(points, models.TimeSeriesPoint{
					Date:         date,
					DayOfWeek:    dow,
					Month:        int(d.Month()),
					Region:       region,
					MaterialType: material,
					VolumeTons:   round2(v),
				})
			}
		}
	}

	return models.Dataset{
		Points:    points,
		Regions:   append([]string(nil), SyntheticRegions...),
		Materials: append([]string(nil), SyntheticMaterials...),
		Source:    g.Name(),
	}, nil
}

var _ domsvc.HistorySource = (*SyntheticGenerator)(nil)
