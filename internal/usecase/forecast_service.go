package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"WasteFlow/internal/domain/models"
	domrepo "WasteFlow/internal/domain/repository"
	"WasteFlow/internal/services/features"
	"WasteFlow/internal/services/forecast"
	"WasteFlow/internal/services/loader"
	"WasteFlow/pkg/cache"
	"WasteFlow/pkg/config"
	"WasteFlow/pkg/logger"
	"WasteFlow/pkg/util"
)

// MaxDailyDetail caps the per-day entries returned in a market forecast.
const MaxDailyDetail = 30

const marketCachePrefix = "forecast:market"

// DatasetLoader produces the training dataset.
type DatasetLoader interface {
	Load(ctx context.Context) (models.Dataset, error)
}

// ForecastConfig holds the forecasting knobs taken from config.
type ForecastConfig struct {
	ModelDir       string
	Seed7DayAvg    float64
	Seed30DayAvg   float64
	Feedback       string
	StrictRegions  bool
	TrainIfMissing bool
	CacheTTL       time.Duration
}

// ForecastService answers supply questions from the model bank.
type ForecastService struct {
	bank    *forecast.Bank
	loader  DatasetLoader
	cfg     ForecastConfig
	cache   cache.Service
	archive domrepo.SeriesArchive
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// ForecastOption configures a ForecastService.
type ForecastOption func(*ForecastService)

func WithForecastCache(c cache.Service) ForecastOption {
	return func(s *ForecastService) { s.cache = c }
}

func WithSeriesArchive(a domrepo.SeriesArchive) ForecastOption {
	return func(s *ForecastService) { s.archive = a }
}

func WithForecastMetrics(m domrepo.Metrics) ForecastOption {
	return func(s *ForecastService) { s.metrics = m }
}

func WithForecastLogger(l *logger.Logger) ForecastOption {
	return func(s *ForecastService) { s.log = l }
}

// WithForecastClock sets the source of "today".
func WithForecastClock(now func() time.Time) ForecastOption {
	return func(s *ForecastService) { s.now = now }
}

func NewForecastService(bank *forecast.Bank, l DatasetLoader, cfg ForecastConfig, opts ...ForecastOption) *ForecastService {
	if cfg.Feedback == "" {
		cfg.Feedback = config.FeedbackLegacy
	}
	if cfg.Seed7DayAvg == 0 {
		cfg.Seed7DayAvg = 50
	}
	if cfg.Seed30DayAvg == 0 {
		cfg.Seed30DayAvg = 48
	}
	s := &ForecastService{
		bank:   bank,
		loader: l,
		cfg:    cfg,
		log:    logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PredictFutureSupply forecasts daily volume for material in region, one
// entry per day starting today.
func (s *ForecastService) PredictFutureSupply(ctx context.Context, material, region string, days int) ([]models.Prediction, error) {
	model, err := s.bank.Model(material)
	if err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, fmt.Errorf("%w: %d days", models.ErrInvalidHorizon, days)
	}

	code, ok := model.RegionCode(region)
	if !ok {
		if s.cfg.StrictRegions {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownRegion, region)
		}
		s.log.Warn("unknown region, using region code 0",
			logger.String("material", material), logger.String("region", region))
	}

	state := newRollingState(s.cfg)
	out := make([]models.Prediction, 0, days)
	for i, date := range util.DateRange(s.now(), days) {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		prev7, prev30 := state.features()
		v := model.Predict(models.FeatureVector{
			DayOfWeek:    loader.DayOfWeek(date),
			Month:        int(date.Month()),
			Prev7DayAvg:  prev7,
			Prev30DayAvg: prev30,
			RegionCode:   code,
		})
		state.observe(v)
		out = append(out, models.Prediction{
			Date:            date.Format(models.DateLayout),
			PredictedVolume: util.Round2(v),
		})
	}

	if s.metrics != nil {
		s.metrics.RecordForecast(material, region)
	}
	return out, nil
}

// ForecastSupply wraps PredictFutureSupply with the horizon total.
func (s *ForecastService) ForecastSupply(ctx context.Context, material, region string, days int) (models.SupplyForecast, error) {
	preds, err := s.PredictFutureSupply(ctx, material, region, days)
	if err != nil {
		return models.SupplyForecast{}, err
	}
	return models.SupplyForecast{
		Material:             material,
		Region:               region,
		DaysAhead:            days,
		TotalPredictedVolume: totalVolume(preds),
		Predictions:          preds,
	}, nil
}

// GetMarketForecast forecasts every (material, region) pair. Pairs that fail
// are logged and left out.
func (s *ForecastService) GetMarketForecast(ctx context.Context, days int) (models.MarketForecast, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: %d days", models.ErrInvalidHorizon, days)
	}
	start := time.Now()
	key := cache.GenerateKeyWithParams(marketCachePrefix, days,
		util.StartOfDay(s.now()).Format(models.DateLayout), s.bank.Version())

	result, hit, err := cache.GetOrLoad(ctx, s.cache, key, s.cfg.CacheTTL,
		func(ctx context.Context) (models.MarketForecast, error) {
			return s.computeMarket(ctx, days)
		})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("market_forecast", time.Since(start).Seconds())
	}
	s.log.Debug("market forecast", logger.Int("days", days), logger.Bool("cached", hit))
	return result, nil
}

func (s *ForecastService) computeMarket(ctx context.Context, days int) (models.MarketForecast, error) {
	materials := s.bank.Materials()
	regions := s.bank.Regions()

	type item struct {
		material string
		regions  map[string]models.RegionForecast
	}
	ch := make(chan item, len(materials))
	var wg sync.WaitGroup

	for _, material := range materials {
		wg.Add(1)
		go func(material string) {
			defer wg.Done()
			byRegion := make(map[string]models.RegionForecast, len(regions))
			for _, region := range regions {
				preds, err := s.PredictFutureSupply(ctx, material, region, days)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.log.Warn("market forecast pair failed",
						logger.String("material", material),
						logger.String("region", region),
						logger.Error(err))
					if s.metrics != nil {
						s.metrics.RecordForecastFailure(material, region)
					}
					continue
				}
				detail := preds
				if len(detail) > MaxDailyDetail {
					detail = detail[:MaxDailyDetail]
				}
				byRegion[region] = models.RegionForecast{
					TotalVolumeTons:  totalVolume(preds),
					DailyPredictions: detail,
				}
			}
			ch <- item{material: material, regions: byRegion}
		}(material)
	}

	wg.Wait()
	close(ch)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(models.MarketForecast, len(materials))
	for it := range ch {
		if len(it.regions) > 0 {
			out[it.material] = it.regions
		}
	}
	return out, nil
}

// Materials lists the forecastable materials.
func (s *ForecastService) Materials() []string { return s.bank.Materials() }

// Regions lists the regions known to the models.
func (s *ForecastService) Regions() []string { return s.bank.Regions() }

// Train reloads history, retrains every model, saves them and archives the series.
func (s *ForecastService) Train(ctx context.Context) (models.TrainSummary, error) {
	if s.bank.Training() {
		return models.TrainSummary{}, models.ErrTrainingInProgress
	}

	ds, err := s.loader.Load(ctx)
	if err != nil {
		return models.TrainSummary{}, fmt.Errorf("load history: %w", err)
	}

	reports, err := s.bank.Train(ctx, ds)
	if err != nil {
		return models.TrainSummary{}, err
	}

	if s.cfg.ModelDir != "" {
		if err := s.bank.Save(s.cfg.ModelDir); err != nil {
			s.log.Error("failed to save models", logger.String("dir", s.cfg.ModelDir), logger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError("model_save")
			}
		}
	}

	if s.archive != nil {
		if err := s.archive.StoreBatch(ctx, ds.Points); err != nil {
			s.log.Error("failed to archive training series", logger.Int("points", len(ds.Points)), logger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError("series_archive")
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, cache.BuildPattern(marketCachePrefix+":")); err != nil {
			s.log.Warn("failed to purge market forecast cache", logger.Error(err))
		}
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Material < reports[j].Material })
	return models.TrainSummary{
		Source:    ds.Source,
		Points:    len(ds.Points),
		Regions:   append([]string(nil), ds.Regions...),
		Reports:   reports,
		TrainedAt: s.now().UTC(),
	}, nil
}

// Bootstrap prepares the models at startup: saved models are loaded unless
// forceTrain is set, and training runs when nothing could be loaded and
// TrainIfMissing allows it.
func (s *ForecastService) Bootstrap(ctx context.Context, forceTrain bool) error {
	if !forceTrain && s.cfg.ModelDir != "" {
		n, err := s.bank.Load(s.cfg.ModelDir)
		if err != nil {
			s.log.Warn("saved models unreadable", logger.String("dir", s.cfg.ModelDir), logger.Error(err))
		}
		if n > 0 {
			return nil
		}
	}

	if !forceTrain && !s.cfg.TrainIfMissing {
		s.log.Warn("no models loaded; forecasts unavailable until trained", logger.String("dir", s.cfg.ModelDir))
		return nil
	}

	summary, err := s.Train(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap training: %w", err)
	}
	s.log.Info("models trained at startup",
		logger.String("source", summary.Source),
		logger.Int("points", summary.Points),
		logger.Int("materials", len(summary.Reports)))
	return nil
}

// ModelStatus summarises the bank for the health endpoint.
type ModelStatus struct {
	Models   int    `json:"models"`
	Version  uint64 `json:"version"`
	Training bool   `json:"training"`
}

func (s *ForecastService) Status() ModelStatus {
	return ModelStatus{Models: s.bank.Len(), Version: s.bank.Version(), Training: s.bank.Training()}
}

func totalVolume(preds []models.Prediction) float64 {
	sum := 0.0
	for _, p := range preds {
		sum += p.PredictedVolume
	}
	return util.Round2(sum)
}

// rollingState feeds each day's prediction back into the next day's features.
// In legacy mode the 7-day feature becomes the last prediction and the 30-day
// feature stays at its seed; in recompute mode both are trailing means of the
// predicted series.
type rollingState struct {
	recompute bool
	prev7     float64
	prev30    float64
	short     *features.Window
	long      *features.Window
}

func newRollingState(cfg ForecastConfig) *rollingState {
	return &rollingState{
		recompute: cfg.Feedback == config.FeedbackRecompute,
		prev7:     cfg.Seed7DayAvg,
		prev30:    cfg.Seed30DayAvg,
		short:     features.NewWindow(features.ShortWindow),
		long:      features.NewWindow(features.LongWindow),
	}
}

func (r *rollingState) features() (float64, float64) {
	return r.prev7, r.prev30
}

func (r *rollingState) observe(v float64) {
	if !r.recompute {
		r.prev7 = v
		return
	}
	r.short.Push(v)
	r.long.Push(v)
	r.prev7 = r.short.Mean()
	r.prev30 = r.long.Mean()
}
