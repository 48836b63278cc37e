package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"WasteFlow/internal/domain/models"
	domsvc "WasteFlow/internal/domain/service"
	applogger "WasteFlow/pkg/logger"
)

// Column names of the historical waste-generation table.
const (
	ColCity          = "City/District"
	ColYear          = "Year"
	ColWasteType     = "Waste Type"
	ColGenerated     = "Waste Generated (Tons/Day)"
	ColRecyclingRate = "Recycling Rate (%)"
)

// Record is one parsed row of the historical table.
type Record struct {
	City          string
	Year          int
	WasteType     string
	TonsPerDay    float64
	RecyclingRate float64
}

// CSVOption configures CSVSource.
type CSVOption func(*CSVSource)

// WithNoiseRatio sets the Gaussian noise sigma as a fraction of each value.
func WithNoiseRatio(r float64) CSVOption {
	return func(s *CSVSource) { s.noiseRatio = r }
}

// WithSeasonalAmplitude sets the amplitude of the sinusoidal seasonal multiplier.
func WithSeasonalAmplitude(a float64) CSVOption {
	return func(s *CSVSource) { s.amplitude = a }
}

// WithSeed fixes the noise generator seed.
func WithSeed(seed int64) CSVOption {
	return func(s *CSVSource) { s.seed = seed }
}

// WithMaterialMap replaces the default coarse->fine table.
func WithMaterialMap(m MaterialMap) CSVOption {
	return func(s *CSVSource) { s.materials = m }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) CSVOption {
	return func(s *CSVSource) { s.log = l }
}

// CSVSource turns the yearly per-city table into a daily per-material series.
type CSVSource struct {
	path       string
	noiseRatio float64
	amplitude  float64
	seed       int64
	materials  MaterialMap
	log        *applogger.Logger
}

func NewCSVSource(path string, opts ...CSVOption) *CSVSource {
	s := &CSVSource{
		path:       path,
		noiseRatio: 0.05,
		amplitude:  0.1,
		seed:       42,
		materials:  DefaultMaterialMap(),
		log:        applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CSVSource) Name() string { return "csv" }

// Load reads the table and expands it. Any read or parse problem is reported
// as ErrDataSourceUnavailable.
func (s *CSVSource) Load(ctx context.Context) (models.Dataset, error) {
	if s.path == "" {
		return models.Dataset{}, fmt.Errorf("%w: no path configured", models.ErrDataSourceUnavailable)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("%w: %v", models.ErrDataSourceUnavailable, err)
	}
	defer f.Close()

	records, err := ParseRecords(f)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("%w: %v", models.ErrDataSourceUnavailable, err)
	}
	ds, err := s.Expand(ctx, records)
	if err != nil {
		return models.Dataset{}, err
	}
	return ds, nil
}

// ParseRecords reads the CSV table, locating columns by their trimmed header names.
func ParseRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	for _, col := range []string{ColCity, ColYear, ColWasteType, ColGenerated} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		year, err := strconv.Atoi(strings.TrimSpace(row[idx[ColYear]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: year: %w", line, err)
		}
		tpd, err := strconv.ParseFloat(strings.TrimSpace(row[idx[ColGenerated]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: tons/day: %w", line, err)
		}
		rec := Record{
			City:       strings.TrimSpace(row[idx[ColCity]]),
			Year:       year,
			WasteType:  strings.TrimSpace(row[idx[ColWasteType]]),
			TonsPerDay: tpd,
		}
		if i, ok := idx[ColRecyclingRate]; ok && i < len(row) {
			if rate, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64); err == nil {
				rec.RecyclingRate = rate
			}
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, errors.New("no data rows")
	}
	return out, nil
}

type seriesKey struct {
	city   string
	coarse string
}

// Expand interpolates the yearly records into daily points, applies weekly
// and seasonal multipliers, splits across fine materials and adds noise.
func (s *CSVSource) Expand(ctx context.Context, records []Record) (models.Dataset, error) {
	series := make(map[seriesKey]YearlySamples)
	outcomes := map[Outcome]int{}
	minYear, maxYear := 0, 0
	for _, r := range records {
		_, outcome := s.materials.Resolve(r.WasteType)
		outcomes[outcome]++
		if outcome != Mapped {
			continue
		}
		k := seriesKey{city: r.City, coarse: r.WasteType}
		if series[k] == nil {
			series[k] = YearlySamples{}
		}
		series[k][r.Year] = r.TonsPerDay
		if minYear == 0 || r.Year < minYear {
			minYear = r.Year
		}
		if r.Year > maxYear {
			maxYear = r.Year
		}
	}
	s.log.Info("historical records resolved",
		applogger.Int("mapped", outcomes[Mapped]),
		applogger.Int("unmapped", outcomes[Unmapped]),
		applogger.Int("unknown", outcomes[Unknown]),
	)
	if len(series) == 0 {
		return models.Dataset{}, fmt.Errorf("%w: no mapped waste types", models.ErrDataSourceUnavailable)
	}

	keys := make([]seriesKey, 0, len(series))
	regionSet := map[string]struct{}{}
	matSet := map[string]struct{}{}
	for k := range series {
		keys = append(keys, k)
		regionSet[k.city] = struct{}{}
		mats, _ := s.materials.Resolve(k.coarse)
		for _, m := range mats {
			matSet[m] = struct{}{}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].city != keys[j].city {
			return keys[i].city < keys[j].city
		}
		return keys[i].coarse < keys[j].coarse
	})

	regions := make([]string, 0, len(regionSet))
	for r := range regionSet {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	var materials []string
	for _, m := range s.materials.Materials() {
		if _, ok := matSet[m]; ok {
			materials = append(materials, m)
		}
	}

	rng := rand.New(rand.NewSource(s.seed))
	start := time.Date(minYear, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(maxYear, 12, 31, 0, 0, 0, 0, time.UTC)
	points := make([]models.TimeSeriesPoint, 0, len(keys)*3*(int(end.Sub(start).Hours()/24)+1))

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return models.Dataset{}, err
		}
		dow := DayOfWeek(d)
		date := d.Format(models.DateLayout)
		for _, k := range keys {
			mats, _ := s.materials.Resolve(k.coarse)
			base := Interpolate(series[k], d) * WeeklyFactor(dow) * SeasonalFactor(d, s.amplitude)
			share := base / float64(len(mats))
			for _, m := range mats {
				v := share
				if s.noiseRatio > 0 {
					v += rng.NormFloat64() * s.noiseRatio * share
				}
				if v < 0 {
					v = 0
				}
				points = append(points, models.TimeSeriesPoint{
					Date:         date,
					DayOfWeek:    dow,
					Month:        int(d.Month()),
					Region:       k.city,
					MaterialType: m,
					VolumeTons:   round2(v),
				})
			}
		}
	}

	return models.Dataset{
		Points:    points,
		Regions:   regions,
		Materials: materials,
		Source:    s.Name(),
	}, nil
}

var _ domsvc.HistorySource = (*CSVSource)(nil)
