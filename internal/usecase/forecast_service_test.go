package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WasteFlow/internal/domain/models"
	"WasteFlow/internal/services/features"
	"WasteFlow/internal/services/forecast"
	"WasteFlow/internal/services/loader"
	"WasteFlow/internal/services/ml"
	"WasteFlow/pkg/cache"
	"WasteFlow/pkg/config"
	"WasteFlow/pkg/logger"
	"WasteFlow/pkg/util"
)

var today = time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)

type countingLoader struct {
	inner DatasetLoader
	calls atomic.Int32
}

func (c *countingLoader) Load(ctx context.Context) (models.Dataset, error) {
	c.calls.Add(1)
	return c.inner.Load(ctx)
}

type fakeArchive struct {
	points int
	err    error
}

func (a *fakeArchive) StoreBatch(_ context.Context, pts []models.TimeSeriesPoint) error {
	a.points += len(pts)
	return a.err
}
func (a *fakeArchive) Health(context.Context) error { return a.err }
func (a *fakeArchive) Close() error                 { return nil }

func newLoader() *countingLoader {
	g := loader.NewSyntheticGenerator(45, 5)
	g.Now = func() time.Time { return today }
	return &countingLoader{inner: g}
}

func newBank() *forecast.Bank {
	p := ml.DefaultParams()
	p.Estimators = 6
	p.MaxDepth = 5
	return forecast.NewBank(forecast.WithParams(p))
}

func newForecast(t *testing.T, cfg ForecastConfig, opts ...ForecastOption) (*ForecastService, *countingLoader) {
	t.Helper()
	if cfg.ModelDir == "" {
		cfg.ModelDir = t.TempDir()
	}
	l := newLoader()
	opts = append([]ForecastOption{WithForecastClock(func() time.Time { return today })}, opts...)
	return NewForecastService(newBank(), l, cfg, opts...), l
}

func trained(t *testing.T, cfg ForecastConfig, opts ...ForecastOption) *ForecastService {
	t.Helper()
	s, _ := newForecast(t, cfg, opts...)
	_, err := s.Train(context.Background())
	require.NoError(t, err)
	return s
}

func TestPredictFutureSupplyDates(t *testing.T) {
	s := trained(t, ForecastConfig{})

	preds, err := s.PredictFutureSupply(context.Background(), "PET", "Mumbai", 30)
	require.NoError(t, err)
	require.Len(t, preds, 30)
	assert.Equal(t, "2025-06-02", preds[0].Date)
	for i := 1; i < len(preds); i++ {
		prev, _ := time.Parse(models.DateLayout, preds[i-1].Date)
		cur, _ := time.Parse(models.DateLayout, preds[i].Date)
		assert.Equal(t, 24*time.Hour, cur.Sub(prev))
		assert.Equal(t, util.Round2(preds[i].PredictedVolume), preds[i].PredictedVolume)
	}

	empty, err := s.PredictFutureSupply(context.Background(), "PET", "Mumbai", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPredictFutureSupplyErrors(t *testing.T) {
	s := trained(t, ForecastConfig{})
	ctx := context.Background()

	_, err := s.PredictFutureSupply(ctx, "Glass", "Mumbai", 5)
	assert.ErrorIs(t, err, models.ErrModelNotFound)
	_, err = s.PredictFutureSupply(ctx, "PET", "Mumbai", -1)
	assert.ErrorIs(t, err, models.ErrInvalidHorizon)

	untrained, _ := newForecast(t, ForecastConfig{})
	_, err = untrained.PredictFutureSupply(ctx, "PET", "Mumbai", 5)
	assert.ErrorIs(t, err, models.ErrModelNotFound)
}

// expected replays the day-ahead loop directly against the model.
func expected(t *testing.T, s *ForecastService, material string, code, days int, recompute bool) []float64 {
	t.Helper()
	m, err := s.bank.Model(material)
	require.NoError(t, err)

	prev7, prev30 := 50.0, 48.0
	short, long := features.NewWindow(7), features.NewWindow(30)
	out := make([]float64, days)
	for i := 0; i < days; i++ {
		d := util.StartOfDay(today).AddDate(0, 0, i)
		v := m.Predict(models.FeatureVector{
			DayOfWeek:    loader.DayOfWeek(d),
			Month:        int(d.Month()),
			Prev7DayAvg:  prev7,
			Prev30DayAvg: prev30,
			RegionCode:   code,
		})
		out[i] = util.Round2(v)
		if recompute {
			short.Push(v)
			long.Push(v)
			prev7, prev30 = short.Mean(), long.Mean()
		} else {
			prev7 = v
		}
	}
	return out
}

func volumes(preds []models.Prediction) []float64 {
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = p.PredictedVolume
	}
	return out
}

func TestFeedbackModes(t *testing.T) {
	legacy := trained(t, ForecastConfig{Feedback: config.FeedbackLegacy})
	preds, err := legacy.PredictFutureSupply(context.Background(), "HDPE", "Delhi", 40)
	require.NoError(t, err)
	assert.Equal(t, expected(t, legacy, "HDPE", 1, 40, false), volumes(preds))

	recompute := trained(t, ForecastConfig{Feedback: config.FeedbackRecompute})
	preds, err = recompute.PredictFutureSupply(context.Background(), "HDPE", "Delhi", 40)
	require.NoError(t, err)
	assert.Equal(t, expected(t, recompute, "HDPE", 1, 40, true), volumes(preds))
}

func TestUnknownRegionFallback(t *testing.T) {
	s := trained(t, ForecastConfig{})
	ctx := context.Background()

	atlantis, err := s.PredictFutureSupply(ctx, "PET", "Atlantis", 10)
	require.NoError(t, err)
	first, err := s.PredictFutureSupply(ctx, "PET", loader.SyntheticRegions[0], 10)
	require.NoError(t, err)
	assert.Equal(t, first, atlantis)

	strict := trained(t, ForecastConfig{StrictRegions: true})
	_, err = strict.PredictFutureSupply(ctx, "PET", "Atlantis", 10)
	assert.ErrorIs(t, err, models.ErrUnknownRegion)
}

func TestForecastSupplyTotal(t *testing.T) {
	s := trained(t, ForecastConfig{})
	res, err := s.ForecastSupply(context.Background(), "Paper", "Chennai", 12)
	require.NoError(t, err)
	sum := 0.0
	for _, p := range res.Predictions {
		sum += p.PredictedVolume
	}
	assert.InDelta(t, sum, res.TotalPredictedVolume, 0.005)
	assert.Equal(t, 12, res.DaysAhead)
}

func TestMarketForecast(t *testing.T) {
	s := trained(t, ForecastConfig{})
	ctx := context.Background()

	market, err := s.GetMarketForecast(ctx, 45)
	require.NoError(t, err)
	require.Len(t, market, len(loader.SyntheticMaterials))
	for material, byRegion := range market {
		assert.Len(t, byRegion, len(loader.SyntheticRegions), material)
		for _, rf := range byRegion {
			assert.Len(t, rf.DailyPredictions, MaxDailyDetail)
		}
	}

	full, err := s.ForecastSupply(ctx, "Steel", "Kolkata", 45)
	require.NoError(t, err)
	assert.Equal(t, full.TotalPredictedVolume, market["Steel"]["Kolkata"].TotalVolumeTons)
	assert.Equal(t, full.Predictions[:MaxDailyDetail], market["Steel"]["Kolkata"].DailyPredictions)

	short, err := s.GetMarketForecast(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, short["PET"]["Mumbai"].DailyPredictions, 3)

	_, err = s.GetMarketForecast(ctx, -1)
	assert.ErrorIs(t, err, models.ErrInvalidHorizon)
}

func TestMarketForecastOmitsFailedPairs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	full := trained(t, ForecastConfig{ModelDir: dir})
	require.NoError(t, full.bank.Save(dir))

	// Overwrite the PET model with one that only knows Mumbai.
	ds, err := newLoader().Load(ctx)
	require.NoError(t, err)
	var pts []models.TimeSeriesPoint
	for _, p := range ds.Points {
		if p.MaterialType == "PET" && p.Region == "Mumbai" {
			pts = append(pts, p)
		}
	}
	narrow := newBank()
	_, err = narrow.Train(ctx, models.Dataset{Points: pts, Regions: []string{"Mumbai"}, Materials: []string{"PET"}})
	require.NoError(t, err)
	require.NoError(t, narrow.Save(dir))

	bank := newBank()
	_, err = bank.Load(dir)
	require.NoError(t, err)
	s := NewForecastService(bank, newLoader(), ForecastConfig{StrictRegions: true},
		WithForecastClock(func() time.Time { return today }))

	market, err := s.GetMarketForecast(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, market["PET"], 1)
	assert.Contains(t, market["PET"], "Mumbai")
	assert.Len(t, market["HDPE"], len(loader.SyntheticRegions))
}

func TestMarketForecastCache(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	s := trained(t, ForecastConfig{CacheTTL: time.Minute}, WithForecastCache(mem))
	ctx := context.Background()

	a, err := s.GetMarketForecast(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())
	b, err := s.GetMarketForecast(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, mem.Len())

	_, err = s.Train(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Len())
}

type stickyCache struct{ cache.Service }

func (stickyCache) DeleteByPattern(context.Context, string) error {
	return errors.New("redis: connection refused")
}

func TestTrainLogsCachePurgeFailure(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")
	l, err := logger.New(&logger.Config{Level: "warn", Format: "json", Output: logPath})
	require.NoError(t, err)

	mem := cache.NewMemoryCache()
	defer mem.Close()
	s, _ := newForecast(t, ForecastConfig{CacheTTL: time.Minute},
		WithForecastCache(stickyCache{mem}), WithForecastLogger(l))

	_, err = s.Train(context.Background())
	require.NoError(t, err)

	out, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "failed to purge market forecast cache")
	assert.Contains(t, string(out), "connection refused")
}

func TestTrainSavesAndArchives(t *testing.T) {
	archive := &fakeArchive{}
	s, l := newForecast(t, ForecastConfig{}, WithSeriesArchive(archive))

	summary, err := s.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "synthetic", summary.Source)
	assert.Equal(t, 45*len(loader.SyntheticRegions)*len(loader.SyntheticMaterials), summary.Points)
	assert.Equal(t, summary.Points, archive.points)
	assert.Equal(t, int32(1), l.calls.Load())
	for i := 1; i < len(summary.Reports); i++ {
		assert.Less(t, summary.Reports[i-1].Material, summary.Reports[i].Material)
	}

	bank := newBank()
	n, err := bank.Load(s.cfg.ModelDir)
	require.NoError(t, err)
	assert.Equal(t, len(loader.SyntheticMaterials), n)
}

func TestTrainArchiveFailureIsNotFatal(t *testing.T) {
	s, _ := newForecast(t, ForecastConfig{}, WithSeriesArchive(&fakeArchive{err: errors.New("down")}))
	_, err := s.Train(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(loader.SyntheticMaterials), s.Status().Models)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idle, l := newForecast(t, ForecastConfig{ModelDir: dir})
	require.NoError(t, idle.Bootstrap(ctx, false))
	assert.Equal(t, 0, idle.Status().Models)
	assert.Zero(t, l.calls.Load())

	eager, l := newForecast(t, ForecastConfig{ModelDir: dir, TrainIfMissing: true})
	require.NoError(t, eager.Bootstrap(ctx, false))
	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, len(loader.SyntheticMaterials), eager.Status().Models)

	reuse, l := newForecast(t, ForecastConfig{ModelDir: dir, TrainIfMissing: true})
	require.NoError(t, reuse.Bootstrap(ctx, false))
	assert.Zero(t, l.calls.Load(), "saved models are loaded, not retrained")
	assert.Equal(t, len(loader.SyntheticMaterials), reuse.Status().Models)

	forced, l := newForecast(t, ForecastConfig{ModelDir: dir})
	require.NoError(t, forced.Bootstrap(ctx, true))
	assert.Equal(t, int32(1), l.calls.Load())
}
