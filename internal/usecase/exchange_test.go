package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WasteFlow/internal/domain/models"
	"WasteFlow/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ExchangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.ExchangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type failingStore struct{ saves atomic.Int32 }

func (s *failingStore) Load(context.Context) (models.ExchangeState, error) {
	return models.ExchangeState{}, nil
}

func (s *failingStore) Save(context.Context, models.ExchangeState) error {
	s.saves.Add(1)
	return errors.New("disk on fire")
}

func (s *failingStore) Close() error { return nil }

func f64(v float64) *float64 { return &v }

func validInput() models.ListingInput {
	return models.ListingInput{
		RecyclerName: "R",
		MaterialType: "PET",
		PurityGrade:  "Food-Grade",
		VolumeTons:   f64(100),
		Region:       "Mumbai",
		PricePerTon:  f64(40000),
	}
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func newExchange(t *testing.T, opts ...ExchangeOption) (*ExchangeService, *repository.JSONStore) {
	t.Helper()
	store := repository.NewJSONStore(filepath.Join(t.TempDir(), "marketplace.json"))
	opts = append([]ExchangeOption{WithIDGenerator(sequentialIDs())}, opts...)
	s := NewExchangeService(store, opts...)
	require.NoError(t, s.Init(context.Background(), false))
	return s, store
}

func TestCreateAndLockScenario(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newExchange(t, WithEventPublisher(pub))
	ctx := context.Background()

	l, err := s.CreateListing(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, models.ListingAvailable, l.Status)
	assert.Equal(t, "id-1", l.ID)

	c, err := s.LockContract(ctx, l.ID, "M")
	require.NoError(t, err)
	assert.Equal(t, 4000000.0, c.TotalValue)
	assert.Equal(t, "R", c.RecyclerName)
	assert.Equal(t, models.ContractConfirmed, c.Status)

	got, err := s.GetListing(l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingLocked, got.Status)
	assert.Empty(t, s.GetListings(models.ListingFilter{}))

	_, err = s.LockContract(ctx, l.ID, "Other")
	assert.ErrorIs(t, err, models.ErrListingUnavailable)
	_, err = s.LockContract(ctx, "missing", "M")
	assert.ErrorIs(t, err, models.ErrListingNotFound)

	assert.Equal(t, []string{models.EventListingCreated, models.EventContractLocked}, pub.types())
}

func TestCreateListingValidation(t *testing.T) {
	s, _ := newExchange(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		edit  func(*models.ListingInput)
		field string
	}{
		{"recycler", func(in *models.ListingInput) { in.RecyclerName = "  " }, "recycler_name"},
		{"material", func(in *models.ListingInput) { in.MaterialType = "" }, "material_type"},
		{"grade", func(in *models.ListingInput) { in.PurityGrade = "" }, "purity_grade"},
		{"volume missing", func(in *models.ListingInput) { in.VolumeTons = nil }, "volume_tons"},
		{"volume zero", func(in *models.ListingInput) { in.VolumeTons = f64(0) }, "volume_tons"},
		{"region", func(in *models.ListingInput) { in.Region = "" }, "region"},
		{"price negative", func(in *models.ListingInput) { in.PricePerTon = f64(-1) }, "price_per_ton"},
		{"date", func(in *models.ListingInput) { in.AvailableDate = "tomorrow" }, "available_date"},
		{"first missing wins", func(in *models.ListingInput) { in.RecyclerName = ""; in.Region = "" }, "recycler_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.edit(&in)
			_, err := s.CreateListing(ctx, in)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Empty(t, s.Snapshot().Listings)
}

func TestLockContractRequiresFields(t *testing.T) {
	s, _ := newExchange(t)
	var verr *models.ValidationError
	_, err := s.LockContract(context.Background(), "", "M")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "listing_id", verr.Field)
	_, err = s.LockContract(context.Background(), "x", " ")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "manufacturer_name", verr.Field)
}

func TestConcurrentLocksYieldOneContract(t *testing.T) {
	s, _ := newExchange(t)
	ctx := context.Background()
	l, err := s.CreateListing(ctx, validInput())
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	var ok, unavailable atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.LockContract(ctx, l.ID, fmt.Sprintf("M%d", i))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, models.ErrListingUnavailable):
				unavailable.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), unavailable.Load())
	assert.Len(t, s.Snapshot().Contracts, 1)
}

func TestLockedListingsHaveExactlyOneContract(t *testing.T) {
	s, _ := newExchange(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		l, err := s.CreateListing(ctx, validInput())
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = s.LockContract(ctx, l.ID, "M")
			require.NoError(t, err)
		}
	}

	state := s.Snapshot()
	perListing := map[string]int{}
	for _, c := range state.Contracts {
		perListing[c.ListingID]++
	}
	for _, l := range state.Listings {
		if l.Status == models.ListingLocked {
			assert.Equal(t, 1, perListing[l.ID], l.ID)
		} else {
			assert.Zero(t, perListing[l.ID], l.ID)
		}
	}
}

func TestGetListingsFilters(t *testing.T) {
	s := NewExchangeService(nil)
	require.NoError(t, s.Init(context.Background(), true))

	assert.Len(t, s.GetListings(models.ListingFilter{}), 4)
	pet := s.GetListings(models.ListingFilter{MaterialType: "PET"})
	require.Len(t, pet, 2)
	assert.Equal(t, "GreenCycle Mumbai", pet[0].RecyclerName)
	assert.Equal(t, "Chennai PureRecycle", pet[1].RecyclerName)

	assert.Len(t, s.GetListings(models.ListingFilter{PurityGrade: "Industrial"}), 1)
	assert.Empty(t, s.GetListings(models.ListingFilter{MaterialType: "PET", Region: "Delhi"}))
}

func TestMarketAnalytics(t *testing.T) {
	s, _ := newExchange(t)
	ctx := context.Background()

	empty := s.GetMarketAnalytics()
	assert.Zero(t, empty.TotalValueTraded)
	assert.Empty(t, empty.LatestContracts)

	var ids []string
	for i := 0; i < 7; i++ {
		in := validInput()
		in.VolumeTons = f64(0.1)
		in.PricePerTon = f64(0.2)
		l, err := s.CreateListing(ctx, in)
		require.NoError(t, err)
		c, err := s.LockContract(ctx, l.ID, "M")
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, err := s.CreateListing(ctx, validInput())
	require.NoError(t, err)

	a := s.GetMarketAnalytics()
	assert.Equal(t, 0.7, a.TotalVolumeTraded)
	assert.Equal(t, 0.14, a.TotalValueTraded)
	assert.Equal(t, 1, a.ActiveListings)
	require.Len(t, a.LatestContracts, LatestContractsLimit)
	assert.Equal(t, ids[2], a.LatestContracts[0].ID)
	assert.Equal(t, ids[6], a.LatestContracts[4].ID)
}

func TestInitSeedsOnlyEmptyExchange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketplace.json")
	ctx := context.Background()

	first := NewExchangeService(repository.NewJSONStore(path))
	require.NoError(t, first.Init(ctx, true))
	seeded := first.Snapshot().Listings
	require.Len(t, seeded, 4)
	assert.Equal(t, 45000.0, seeded[0].PricePerTon)
	assert.Equal(t, "2026-03-15", seeded[0].AvailableDate)

	_, err := first.LockContract(ctx, seeded[2].ID, "M")
	require.NoError(t, err)

	second := NewExchangeService(repository.NewJSONStore(path))
	require.NoError(t, second.Init(ctx, true))
	state := second.Snapshot()
	assert.Len(t, state.Listings, 4)
	require.Len(t, state.Contracts, 1)
	assert.Equal(t, 5500000.0, state.Contracts[0].TotalValue)

	l, err := second.GetListing(seeded[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingLocked, l.Status)
}

func TestInitLeavesUnreadableStoreIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketplace.json")
	ctx := context.Background()

	first := NewExchangeService(repository.NewJSONStore(path))
	require.NoError(t, first.Init(ctx, false))
	l, err := first.CreateListing(ctx, validInput())
	require.NoError(t, err)
	_, err = first.LockContract(ctx, l.ID, "M")
	require.NoError(t, err)

	committed, err := os.ReadFile(path)
	require.NoError(t, err)
	damaged := append(append([]byte(nil), committed...), '}')
	require.NoError(t, os.WriteFile(path, damaged, 0o644))

	second := NewExchangeService(repository.NewJSONStore(path))
	err = second.Init(ctx, true)
	require.Error(t, err)
	assert.Empty(t, second.Snapshot().Listings)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, damaged, onDisk)
	assert.Contains(t, string(onDisk), l.ID)
}

func TestStoreFailuresKeepMemoryAuthoritative(t *testing.T) {
	store := &failingStore{}
	s := NewExchangeService(store, WithExchangeClock(func() time.Time { return time.Unix(0, 0) }))
	require.NoError(t, s.Init(context.Background(), false))

	l, err := s.CreateListing(context.Background(), validInput())
	require.NoError(t, err)
	_, err = s.LockContract(context.Background(), l.ID, "M")
	require.NoError(t, err)

	assert.Equal(t, int32(2), store.saves.Load())
	assert.Len(t, s.Snapshot().Contracts, 1)
}
