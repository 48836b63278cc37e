package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"WasteFlow/internal/domain/models"
	domrepo "WasteFlow/internal/domain/repository"
	"WasteFlow/pkg/logger"
)

// LatestContractsLimit is how many recent contracts analytics returns.
const LatestContractsLimit = 5

// ExchangeService is the listing/contract engine. Every mutation runs
// read-check-mutate-persist under one mutex; events go out after it is released.
type ExchangeService struct {
	mu        sync.Mutex
	listings  []models.Listing
	contracts []models.Contract
	index     map[string]int

	store     domrepo.RecordStore
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

// ExchangeOption configures an ExchangeService.
type ExchangeOption func(*ExchangeService)

func WithEventPublisher(p domrepo.EventPublisher) ExchangeOption {
	return func(s *ExchangeService) { s.publisher = p }
}

func WithExchangeMetrics(m domrepo.Metrics) ExchangeOption {
	return func(s *ExchangeService) { s.metrics = m }
}

func WithExchangeLogger(l *logger.Logger) ExchangeOption {
	return func(s *ExchangeService) { s.log = l }
}

func WithExchangeClock(now func() time.Time) ExchangeOption {
	return func(s *ExchangeService) { s.now = now }
}

// WithIDGenerator replaces uuid v4 ids.
func WithIDGenerator(gen func() string) ExchangeOption {
	return func(s *ExchangeService) { s.newID = gen }
}

// NewExchangeService builds an empty exchange. store may be nil for a memory-only exchange.
func NewExchangeService(store domrepo.RecordStore, opts ...ExchangeOption) *ExchangeService {
	s := &ExchangeService{
		index: make(map[string]int),
		store: store,
		log:   logger.Nop(),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted state and, when seed is set and there are no
// listings yet, inserts the demo listings. A store that cannot be read is
// reported and left untouched.
func (s *ExchangeService) Init(ctx context.Context, seed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		state, err := s.store.Load(ctx)
		if err != nil {
			s.recordError("store_load")
			return fmt.Errorf("load exchange state: %w", err)
		}
		s.listings = state.Listings
		s.contracts = state.Contracts
		s.reindex()
		s.log.Info("exchange state loaded",
			logger.Int("listings", len(s.listings)),
			logger.Int("contracts", len(s.contracts)))
	}

	if seed && len(s.listings) == 0 {
		now := s.now().UTC()
		for _, in := range SeedListings() {
			s.appendListing(s.buildListing(in, now))
		}
		s.log.Info("exchange seeded", logger.Int("listings", len(s.listings)))
		s.persistLocked(ctx)
	}
	return nil
}

// SeedListings are the demo offers inserted into an empty exchange.
func SeedListings() []models.ListingInput {
	f := func(v float64) *float64 { return &v }
	return []models.ListingInput{
		{RecyclerName: "GreenCycle Mumbai", MaterialType: "PET", PurityGrade: "Food-Grade", VolumeTons: f(250), AvailableDate: "2026-03-15", Region: "Mumbai", PricePerTon: f(45000)},
		{RecyclerName: "Delhi Waste Solutions", MaterialType: "HDPE", PurityGrade: "Industrial", VolumeTons: f(120), AvailableDate: "2026-03-01", Region: "Delhi", PricePerTon: f(38000)},
		{RecyclerName: "Bangalore EcoHub", MaterialType: "Aluminum", PurityGrade: "Standard", VolumeTons: f(50), AvailableDate: "2026-02-28", Region: "Bangalore", PricePerTon: f(110000)},
		{RecyclerName: "Chennai PureRecycle", MaterialType: "PET", PurityGrade: "Food-Grade", VolumeTons: f(300), AvailableDate: "2026-04-01", Region: "Chennai", PricePerTon: f(46000)},
	}
}

// CreateListing validates in and adds a new available listing.
func (s *ExchangeService) CreateListing(ctx context.Context, in models.ListingInput) (models.Listing, error) {
	if err := validateListing(&in); err != nil {
		return models.Listing{}, err
	}

	s.mu.Lock()
	l := s.buildListing(in, s.now().UTC())
	s.appendListing(l)
	s.persistLocked(ctx)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordListingCreated(l.MaterialType)
	}
	s.log.Info("listing created",
		logger.String("listing_id", l.ID),
		logger.String("material", l.MaterialType),
		logger.String("region", l.Region),
		logger.Float64("volume_tons", l.VolumeTons))

	s.publish(ctx, models.ExchangeEvent{Type: models.EventListingCreated, OccurredAt: l.CreatedAt, Listing: &l})
	return l, nil
}

func validateListing(in *models.ListingInput) error {
	in.RecyclerName = strings.TrimSpace(in.RecyclerName)
	in.MaterialType = strings.TrimSpace(in.MaterialType)
	in.PurityGrade = strings.TrimSpace(in.PurityGrade)
	in.Region = strings.TrimSpace(in.Region)
	in.AvailableDate = strings.TrimSpace(in.AvailableDate)

	required := []struct {
		field string
		value string
	}{
		{"recycler_name", in.RecyclerName},
		{"material_type", in.MaterialType},
		{"purity_grade", in.PurityGrade},
	}
	for _, r := range required {
		if r.value == "" {
			return models.MissingField(r.field)
		}
	}
	if err := positive("volume_tons", in.VolumeTons); err != nil {
		return err
	}
	if in.Region == "" {
		return models.MissingField("region")
	}
	if err := positive("price_per_ton", in.PricePerTon); err != nil {
		return err
	}
	if in.AvailableDate != "" {
		if _, err := time.Parse(models.DateLayout, in.AvailableDate); err != nil {
			return &models.ValidationError{Field: "available_date", Message: "must be YYYY-MM-DD"}
		}
	}
	return nil
}

func positive(field string, v *float64) error {
	if v == nil {
		return models.MissingField(field)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return &models.ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return nil
}

func (s *ExchangeService) buildListing(in models.ListingInput, now time.Time) models.Listing {
	return models.Listing{
		ID:            s.newID(),
		RecyclerName:  in.RecyclerName,
		MaterialType:  in.MaterialType,
		PurityGrade:   in.PurityGrade,
		VolumeTons:    *in.VolumeTons,
		AvailableDate: in.AvailableDate,
		Region:        in.Region,
		PricePerTon:   *in.PricePerTon,
		Status:        models.ListingAvailable,
		CreatedAt:     now,
	}
}

func (s *ExchangeService) appendListing(l models.Listing) {
	s.index[l.ID] = len(s.listings)
	s.listings = append(s.listings, l)
}

func (s *ExchangeService) reindex() {
	s.index = make(map[string]int, len(s.listings))
	for i, l := range s.listings {
		s.index[l.ID] = i
	}
}

// GetListings returns the available listings matching filter, in insertion order.
func (s *ExchangeService) GetListings(filter models.ListingFilter) []models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if l.Status == models.ListingAvailable && filter.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

// GetListing returns one listing in any status.
func (s *ExchangeService) GetListing(id string) (models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return models.Listing{}, fmt.Errorf("%w: %s", models.ErrListingNotFound, id)
	}
	return s.listings[i], nil
}

// LockContract claims an available listing for a manufacturer. Of any number
// of concurrent calls for one listing exactly one succeeds.
func (s *ExchangeService) LockContract(ctx context.Context, listingID, manufacturer string) (models.Contract, error) {
	listingID = strings.TrimSpace(listingID)
	manufacturer = strings.TrimSpace(manufacturer)
	if listingID == "" {
		return models.Contract{}, models.MissingField("listing_id")
	}
	if manufacturer == "" {
		return models.Contract{}, models.MissingField("manufacturer_name")
	}

	s.mu.Lock()
	i, ok := s.index[listingID]
	if !ok {
		s.mu.Unlock()
		return models.Contract{}, fmt.Errorf("%w: %s", models.ErrListingNotFound, listingID)
	}
	l := &s.listings[i]
	if l.Status != models.ListingAvailable {
		s.mu.Unlock()
		return models.Contract{}, fmt.Errorf("%w: %s", models.ErrListingUnavailable, listingID)
	}

	l.Status = models.ListingLocked
	c := models.Contract{
		ID:               s.newID(),
		ListingID:        l.ID,
		ManufacturerName: manufacturer,
		RecyclerName:     l.RecyclerName,
		MaterialType:     l.MaterialType,
		VolumeTons:       l.VolumeTons,
		PricePerTon:      l.PricePerTon,
		TotalValue:       decimal.NewFromFloat(l.VolumeTons).Mul(decimal.NewFromFloat(l.PricePerTon)).InexactFloat64(),
		ContractDate:     s.now().UTC(),
		Status:           models.ContractConfirmed,
	}
	s.contracts = append(s.contracts, c)
	s.persistLocked(ctx)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordContractLocked(c.MaterialType, c.TotalValue)
	}
	s.log.Info("contract locked",
		logger.String("contract_id", c.ID),
		logger.String("listing_id", c.ListingID),
		logger.String("manufacturer", c.ManufacturerName),
		logger.Float64("total_value", c.TotalValue))

	s.publish(ctx, models.ExchangeEvent{Type: models.EventContractLocked, OccurredAt: c.ContractDate, Contract: &c})
	return c, nil
}

// GetMarketAnalytics summarises traded volume and value across all contracts.
func (s *ExchangeService) GetMarketAnalytics() models.MarketAnalytics {
	s.mu.Lock()
	defer s.mu.Unlock()

	volume, value := decimal.Zero, decimal.Zero
	for _, c := range s.contracts {
		volume = volume.Add(decimal.NewFromFloat(c.VolumeTons))
		value = value.Add(decimal.NewFromFloat(c.TotalValue))
	}

	active := 0
	for _, l := range s.listings {
		if l.Status == models.ListingAvailable {
			active++
		}
	}

	start := len(s.contracts) - LatestContractsLimit
	if start < 0 {
		start = 0
	}
	latest := make([]models.Contract, len(s.contracts)-start)
	copy(latest, s.contracts[start:])

	return models.MarketAnalytics{
		TotalVolumeTraded: volume.InexactFloat64(),
		TotalValueTraded:  value.InexactFloat64(),
		ActiveListings:    active,
		LatestContracts:   latest,
	}
}

// Snapshot returns a copy of the full state.
func (s *ExchangeService) Snapshot() models.ExchangeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ExchangeService) snapshotLocked() models.ExchangeState {
	return models.ExchangeState{
		Listings:  append([]models.Listing{}, s.listings...),
		Contracts: append([]models.Contract{}, s.contracts...),
	}
}

// persistLocked writes the whole state through to the store. Failures are
// logged; memory stays authoritative.
func (s *ExchangeService) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	start := time.Now()
	if err := s.store.Save(context.WithoutCancel(ctx), s.snapshotLocked()); err != nil {
		s.log.Error("failed to persist exchange state", logger.Error(err))
		s.recordError("store_save")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("store_save", time.Since(start).Seconds())
	}
}

func (s *ExchangeService) publish(ctx context.Context, ev models.ExchangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish exchange event", logger.String("type", ev.Type), logger.Error(err))
		s.recordError("publish")
	}
}

func (s *ExchangeService) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(kind)
	}
}
