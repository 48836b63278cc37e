// Package forecast holds the per-material regression models: training,
// prediction and on-disk persistence.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"WasteFlow/internal/domain/models"
	"WasteFlow/internal/domain/repository"
	"WasteFlow/internal/services/features"
	"WasteFlow/internal/services/ml"
	"WasteFlow/pkg/logger"
	"WasteFlow/pkg/util"
)

const modelSuffix = "_model.json"

// Bank owns one model per material. Predictions take the read lock; training
// and loading build new models outside the lock and swap them in.
type Bank struct {
	mu      sync.RWMutex
	models  map[string]*MaterialModel
	order   []string
	regions []string

	training atomic.Bool
	version  atomic.Uint64

	params    ml.Params
	testRatio float64
	splitSeed int64

	log     *logger.Logger
	metrics repository.Metrics
}

// Option configures a Bank.
type Option func(*Bank)

func WithParams(p ml.Params) Option { return func(b *Bank) { b.params = p } }

// WithSplit sets the held-out ratio and shuffle seed of the train/test split.
func WithSplit(testRatio float64, seed int64) Option {
	return func(b *Bank) {
		b.testRatio = testRatio
		b.splitSeed = seed
	}
}

func WithLogger(l *logger.Logger) Option { return func(b *Bank) { b.log = l } }

func WithMetrics(m repository.Metrics) Option { return func(b *Bank) { b.metrics = m } }

func NewBank(opts ...Option) *Bank {
	b := &Bank{
		models:    make(map[string]*MaterialModel),
		params:    ml.DefaultParams(),
		testRatio: 0.2,
		splitSeed: 42,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Train fits one model per material of the dataset and replaces the current
// models. A call made while another is running fails with ErrTrainingInProgress.
func (b *Bank) Train(ctx context.Context, ds models.Dataset) ([]models.TrainReport, error) {
	if !b.training.CompareAndSwap(false, true) {
		return nil, models.ErrTrainingInProgress
	}
	defer b.training.Store(false)

	if len(ds.Points) == 0 {
		return nil, errors.New("forecast: empty dataset")
	}

	rows := features.BuildFeatures(ds.Points)
	codes := make(map[string]int, len(ds.Regions))
	for i, r := range ds.Regions {
		codes[r] = i
	}

	byMaterial := make(map[string][]models.FeatureRow)
	for _, r := range rows {
		byMaterial[r.MaterialType] = append(byMaterial[r.MaterialType], r)
	}

	materials := ds.Materials
	if len(materials) == 0 {
		for m := range byMaterial {
			materials = append(materials, m)
		}
		sort.Strings(materials)
	}

	trained := make(map[string]*MaterialModel, len(materials))
	order := make([]string, 0, len(materials))
	reports := make([]models.TrainReport, 0, len(materials))

	for _, material := range materials {
		group := byMaterial[material]
		if len(group) < 2 {
			b.log.Warn("skipping material with too few rows",
				logger.String("material", material), logger.Int("rows", len(group)))
			continue
		}

		start := time.Now()
		m, err := b.fit(ctx, material, ds.Regions, codes, group)
		if err != nil {
			return nil, fmt.Errorf("train %s: %w", material, err)
		}
		elapsed := time.Since(start)

		trained[material] = m
		order = append(order, material)
		reports = append(reports, models.TrainReport{
			Material: material,
			Rows:     m.Rows,
			TrainR2:  m.TrainR2,
			TestR2:   m.TestR2,
			Duration: elapsed,
		})
		if b.metrics != nil {
			b.metrics.RecordTraining(material, elapsed.Seconds(), m.TrainR2, m.TestR2)
		}
		b.log.Info("material model trained",
			logger.String("material", material),
			logger.Int("rows", m.Rows),
			logger.Float64("train_r2", m.TrainR2),
			logger.Float64("test_r2", m.TestR2),
			logger.Duration("elapsed", elapsed))
	}

	if len(trained) == 0 {
		return nil, errors.New("forecast: no material had enough rows to train")
	}

	b.swap(trained, order, ds.Regions)
	return reports, nil
}

func (b *Bank) fit(ctx context.Context, material string, regions []string, codes map[string]int, group []models.FeatureRow) (*MaterialModel, error) {
	x := make([][]float64, len(group))
	y := make([]float64, len(group))
	for i, r := range group {
		x[i] = models.FeatureVector{
			DayOfWeek:    r.DayOfWeek,
			Month:        r.Month,
			Prev7DayAvg:  r.Prev7DayAvg,
			Prev30DayAvg: r.Prev30DayAvg,
			RegionCode:   codes[r.Region],
		}.Values()
		y[i] = r.VolumeTons
	}

	trainIdx, testIdx := ml.TrainTestSplit(len(x), b.testRatio, b.splitSeed)
	xTrain, yTrain := ml.Rows(x, y, trainIdx)
	xTest, yTest := ml.Rows(x, y, testIdx)

	forest, err := ml.Fit(ctx, xTrain, yTrain, b.params)
	if err != nil {
		return nil, err
	}

	m := &MaterialModel{
		Material:  material,
		Features:  append([]string(nil), FeatureNames...),
		Regions:   append([]string(nil), regions...),
		Rows:      len(group),
		TrainR2:   forest.Score(xTrain, yTrain),
		TrainedAt: time.Now().UTC(),
		Forest:    forest,
	}
	if len(xTest) > 0 {
		m.TestR2 = forest.Score(xTest, yTest)
	}
	return m, nil
}

func (b *Bank) swap(trained map[string]*MaterialModel, order, regions []string) {
	b.mu.Lock()
	b.models = trained
	b.order = order
	b.regions = append([]string(nil), regions...)
	b.mu.Unlock()
	b.version.Add(1)
}

// Model returns the current model for material.
func (b *Bank) Model(material string) (*MaterialModel, error) {
	b.mu.RLock()
	m, ok := b.models[material]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrModelNotFound, material)
	}
	return m, nil
}

// Predict returns the model's volume estimate for one feature vector.
func (b *Bank) Predict(material string, fv models.FeatureVector) (float64, error) {
	m, err := b.Model(material)
	if err != nil {
		return 0, err
	}
	return m.Predict(fv), nil
}

// RegionCode resolves region against the region list material's model was trained with.
func (b *Bank) RegionCode(material, region string) (int, error) {
	m, err := b.Model(material)
	if err != nil {
		return 0, err
	}
	code, ok := m.RegionCode(region)
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrUnknownRegion, region)
	}
	return code, nil
}

// Materials lists the materials with a trained model, in training order.
func (b *Bank) Materials() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Regions lists the regions the current models were trained on.
func (b *Bank) Regions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.regions...)
}

func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.models)
}

// Version changes every time the model set is replaced.
func (b *Bank) Version() uint64 { return b.version.Load() }

// Training reports whether a Train call is running.
func (b *Bank) Training() bool { return b.training.Load() }

// ModelPath is where material's model is stored under dir.
func ModelPath(dir, material string) string {
	return filepath.Join(dir, fileSafe(material)+modelSuffix)
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Save writes every model to dir, one file per material.
func (b *Bank) Save(dir string) error {
	b.mu.RLock()
	snapshot := make([]*MaterialModel, 0, len(b.order))
	for _, material := range b.order {
		snapshot = append(snapshot, b.models[material])
	}
	b.mu.RUnlock()

	for _, m := range snapshot {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode %s model: %w", m.Material, err)
		}
		path := ModelPath(dir, m.Material)
		if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
			return fmt.Errorf("save %s model: %w", m.Material, err)
		}
		b.log.Debug("model saved", logger.String("material", m.Material), logger.String("path", path))
	}
	return nil
}

// Load replaces the current models with every model file found in dir and
// returns how many were loaded. A missing directory loads nothing.
func (b *Bank) Load(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+modelSuffix))
	if err != nil {
		return 0, fmt.Errorf("list models: %w", err)
	}
	if len(paths) == 0 {
		return 0, nil
	}
	sort.Strings(paths)

	loaded := make(map[string]*MaterialModel, len(paths))
	order := make([]string, 0, len(paths))
	var regions []string
	for _, path := range paths {
		m, err := readModel(path)
		if err != nil {
			return 0, err
		}
		if _, dup := loaded[m.Material]; dup {
			continue
		}
		loaded[m.Material] = m
		order = append(order, m.Material)
		regions = mergeRegions(regions, m.Regions)
	}

	b.swap(loaded, order, regions)
	b.log.Info("models loaded", logger.String("dir", dir), logger.Strings("materials", order))
	return len(loaded), nil
}

// LoadMaterial loads a single material's model into the bank, keeping the others.
func (b *Bank) LoadMaterial(dir, material string) error {
	m, err := readModel(ModelPath(dir, material))
	if err != nil {
		return err
	}

	b.mu.Lock()
	next := make(map[string]*MaterialModel, len(b.models)+1)
	for k, v := range b.models {
		next[k] = v
	}
	order := append([]string(nil), b.order...)
	if _, ok := next[m.Material]; !ok {
		order = append(order, m.Material)
	}
	next[m.Material] = m
	b.models = next
	b.order = order
	b.regions = mergeRegions(append([]string(nil), b.regions...), m.Regions)
	b.mu.Unlock()
	b.version.Add(1)
	return nil
}

func readModel(path string) (*MaterialModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var m MaterialModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if !m.valid() {
		return nil, fmt.Errorf("model %s is incomplete", path)
	}
	return &m, nil
}

func mergeRegions(dst, src []string) []string {
	for _, r := range src {
		found := false
		for _, d := range dst {
			if d == r {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, r)
		}
	}
	return dst
}
