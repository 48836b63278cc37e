package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WasteFlow/internal/domain/models"
	"WasteFlow/internal/repository"
	"WasteFlow/internal/service/ratelimit"
	"WasteFlow/internal/services/forecast"
	"WasteFlow/internal/services/loader"
	"WasteFlow/internal/services/ml"
	"WasteFlow/internal/usecase"
	xhttp "WasteFlow/pkg/http"
	xlogger "WasteFlow/pkg/logger"
)

var fixedNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func smallParams() ml.Params {
	p := ml.DefaultParams()
	p.Estimators = 5
	p.MaxDepth = 4
	return p
}

func newForecastService(t *testing.T, train bool) *usecase.ForecastService {
	t.Helper()
	gen := loader.NewSyntheticGenerator(45, 7)
	gen.Now = func() time.Time { return fixedNow }
	bank := forecast.NewBank(forecast.WithParams(smallParams()))
	svc := usecase.NewForecastService(bank, gen, usecase.ForecastConfig{ModelDir: t.TempDir()},
		usecase.WithForecastClock(func() time.Time { return fixedNow }))
	if train {
		_, err := svc.Train(context.Background())
		require.NoError(t, err)
	}
	return svc
}

func newExchangeService(t *testing.T) *usecase.ExchangeService {
	t.Helper()
	store := repository.NewJSONStore(filepath.Join(t.TempDir(), "marketplace.json"))
	svc := usecase.NewExchangeService(store, usecase.WithExchangeClock(func() time.Time { return fixedNow }))
	require.NoError(t, svc.Init(context.Background(), true))
	return svc
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.JSONSerializer = xhttp.JSONSerializer{}
	e.HTTPErrorHandler = xhttp.ErrorHandler(xlogger.Nop())
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func errorCode(t *testing.T, env envelope) string {
	t.Helper()
	var errs []struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.NotEmpty(t, errs)
	return errs[0].Code
}

func TestSupplyForecast(t *testing.T) {
	e := newEcho()
	NewForecastHandler(xlogger.Nop(), newForecastService(t, true)).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/api/forecast/supply?material=PET&region=Mumbai&days=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)

	var res models.SupplyForecast
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "PET", res.Material)
	assert.Equal(t, 10, res.DaysAhead)
	require.Len(t, res.Predictions, 10)
	assert.Equal(t, "2025-06-02", res.Predictions[0].Date)
	assert.Equal(t, "2025-06-11", res.Predictions[9].Date)
}

func TestSupplyForecastDefaults(t *testing.T) {
	e := newEcho()
	NewForecastHandler(xlogger.Nop(), newForecastService(t, true)).RegisterRoutes(e)

	_, env := do(t, e, http.MethodGet, "/api/forecast/supply", "")
	var res models.SupplyForecast
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "PET", res.Material)
	assert.Equal(t, "Mumbai", res.Region)
	assert.Len(t, res.Predictions, 30)
}

func TestSupplyForecastErrors(t *testing.T) {
	e := newEcho()
	NewForecastHandler(xlogger.Nop(), newForecastService(t, true)).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/api/forecast/supply?material=Glass", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_MODEL_NOT_FOUND", errorCode(t, env))

	rec, _ = do(t, e, http.MethodGet, "/api/forecast/supply?days=1000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSupplyForecastWithoutModels(t *testing.T) {
	e := newEcho()
	NewForecastHandler(xlogger.Nop(), newForecastService(t, false)).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/api/forecast/supply", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_MODEL_NOT_FOUND", errorCode(t, env))
}

func TestMarketForecastAndMaterials(t *testing.T) {
	e := newEcho()
	NewForecastHandler(xlogger.Nop(), newForecastService(t, true)).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/api/forecast/market?days=40", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var market models.MarketForecast
	require.NoError(t, json.Unmarshal(env.Data, &market))
	assert.Len(t, market, len(loader.SyntheticMaterials))
	pet := market["PET"]["Mumbai"]
	assert.Len(t, pet.DailyPredictions, usecase.MaxDailyDetail)
	assert.Greater(t, pet.TotalVolumeTons, 0.0)

	_, env = do(t, e, http.MethodGet, "/api/forecast/materials", "")
	var mats materialsResponse
	require.NoError(t, json.Unmarshal(env.Data, &mats))
	assert.ElementsMatch(t, loader.SyntheticMaterials, mats.Materials)
	assert.Equal(t, loader.SyntheticRegions, mats.Regions)
}

func TestTrainEndpoint(t *testing.T) {
	e := newEcho()
	NewForecastHandler(xlogger.Nop(), newForecastService(t, false)).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodPost, "/api/forecast/train", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.TrainSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, "synthetic", summary.Source)
	assert.Len(t, summary.Reports, len(loader.SyntheticMaterials))
}

func TestCreateListingAndLockContract(t *testing.T) {
	e := newEcho()
	NewExchangeHandler(xlogger.Nop(), newExchangeService(t), nil).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodPost, "/api/listings/create",
		`{"recycler_name":"R","material_type":"PET","purity_grade":"Food-Grade","volume_tons":100,"region":"Mumbai","price_per_ton":40000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusCreated, env.Status)
	var listing models.Listing
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	assert.Equal(t, models.ListingAvailable, listing.Status)

	rec, env = do(t, e, http.MethodPost, "/api/contracts/lock",
		`{"listing_id":"`+listing.ID+`","manufacturer_name":"M"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var contract models.Contract
	require.NoError(t, json.Unmarshal(env.Data, &contract))
	assert.Equal(t, 4000000.0, contract.TotalValue)
	assert.Equal(t, models.ContractConfirmed, contract.Status)

	rec, env = do(t, e, http.MethodPost, "/api/contracts/lock",
		`{"listing_id":"`+listing.ID+`","manufacturer_name":"Other"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ERR_LISTING_UNAVAILABLE", errorCode(t, env))

	rec, env = do(t, e, http.MethodPost, "/api/contracts/lock", `{"listing_id":"nope","manufacturer_name":"M"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_LISTING_NOT_FOUND", errorCode(t, env))

	_, env = do(t, e, http.MethodGet, "/api/market/analytics", "")
	var analytics models.MarketAnalytics
	require.NoError(t, json.Unmarshal(env.Data, &analytics))
	assert.Equal(t, 100.0, analytics.TotalVolumeTraded)
	assert.Equal(t, 4000000.0, analytics.TotalValueTraded)
	assert.Equal(t, 4, analytics.ActiveListings)
	assert.Len(t, analytics.LatestContracts, 1)
}

func TestCreateListingValidation(t *testing.T) {
	e := newEcho()
	NewExchangeHandler(xlogger.Nop(), newExchangeService(t), nil).RegisterRoutes(e)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing volume", `{"recycler_name":"R","material_type":"PET","purity_grade":"A","region":"Mumbai","price_per_ton":1}`, "volume_tons"},
		{"zero price", `{"recycler_name":"R","material_type":"PET","purity_grade":"A","volume_tons":5,"region":"Mumbai","price_per_ton":0}`, "price_per_ton"},
		{"bad date", `{"recycler_name":"R","material_type":"PET","purity_grade":"A","volume_tons":5,"region":"Mumbai","price_per_ton":1,"available_date":"03/01/2026"}`, "available_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := do(t, e, http.MethodPost, "/api/listings/create", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var errs []xhttp.ValidationError
			require.NoError(t, json.Unmarshal(env.Data, &errs))
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.field, errs[0].Field)
		})
	}
}

func TestListingsFilter(t *testing.T) {
	e := newEcho()
	NewExchangeHandler(xlogger.Nop(), newExchangeService(t), nil).RegisterRoutes(e)

	_, env := do(t, e, http.MethodGet, "/api/listings?material=PET", "")
	var list struct {
		Rows  []models.Listing `json:"rows"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
	for _, l := range list.Rows {
		assert.Equal(t, "PET", l.MaterialType)
	}

	_, env = do(t, e, http.MethodGet, "/api/listings?material=PET&region=Chennai", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "Chennai PureRecycle", list.Rows[0].RecyclerName)
}

func TestRateLimitOnMutations(t *testing.T) {
	e := newEcho()
	NewExchangeHandler(xlogger.Nop(), newExchangeService(t), ratelimit.New(1, 0.0001)).RegisterRoutes(e)

	body := `{"listing_id":"nope","manufacturer_name":"M"}`
	rec, _ := do(t, e, http.MethodPost, "/api/contracts/lock", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, env := do(t, e, http.MethodPost, "/api/contracts/lock", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "ERR_RATE_LIMITED", errorCode(t, env))

	rec, _ = do(t, e, http.MethodGet, "/api/listings", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubClassifier struct {
	got []byte
}

func (s *stubClassifier) Classify(_ context.Context, image []byte, _ string) (models.Classification, error) {
	s.got = image
	return models.Classification{Class: "Aluminum", Confidence: 0.8}, nil
}

func TestClassify(t *testing.T) {
	stub := &stubClassifier{}
	e := newEcho()
	NewClassifyHandler(xlogger.Nop(), stub).RegisterRoutes(e)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "can.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("img"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/classify", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("img"), stub.got)
	assert.Contains(t, rec.Body.String(), `"class":"Aluminum"`)
}

func TestClassifyDisabled(t *testing.T) {
	e := newEcho()
	NewClassifyHandler(xlogger.Nop(), nil).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodPost, "/api/classify", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ERR_CLASSIFIER_DISABLED", errorCode(t, env))
}

func TestHealth(t *testing.T) {
	e := newEcho()
	NewHealthHandler(newForecastService(t, true), nil).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res healthResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, len(loader.SyntheticMaterials), res.Models.Models)
	assert.Empty(t, res.Archive)
}
