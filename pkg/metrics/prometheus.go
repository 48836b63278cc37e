package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts        *prometheus.CounterVec
	forecastFailures *prometheus.CounterVec
	trainSeconds     *prometheus.HistogramVec
	modelR2          *prometheus.GaugeVec
	listingsCreated  *prometheus.CounterVec
	contractsLocked  *prometheus.CounterVec
	valueTraded      *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a recorder registered with reg, or the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasteflow_forecasts_total",
				Help: "Total number of supply forecasts served",
			},
			[]string{"material", "region"},
		),
		forecastFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasteflow_forecast_failures_total",
				Help: "Market forecast pairs that failed and were omitted",
			},
			[]string{"material", "region"},
		),
		trainSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wasteflow_model_training_seconds",
				Help:    "Time to train one material model",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"material"},
		),
		modelR2: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wasteflow_model_r2",
				Help: "Coefficient of determination of the latest model per split",
			},
			[]string{"material", "split"},
		),
		listingsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasteflow_listings_created_total",
				Help: "Total number of listings created",
			},
			[]string{"material"},
		),
		contractsLocked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasteflow_contracts_locked_total",
				Help: "Total number of contracts locked",
			},
			[]string{"material"},
		),
		valueTraded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasteflow_value_traded_total",
				Help: "Total contract value locked",
			},
			[]string{"material"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasteflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wasteflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordForecast(material, region string) {
	r.forecasts.WithLabelValues(material, region).Inc()
}

func (r *Recorder) RecordForecastFailure(material, region string) {
	r.forecastFailures.WithLabelValues(material, region).Inc()
}

// RecordTraining records one material model fit and its diagnostics.
func (r *Recorder) RecordTraining(material string, seconds, trainR2, testR2 float64) {
	r.trainSeconds.WithLabelValues(material).Observe(seconds)
	r.modelR2.WithLabelValues(material, "train").Set(trainR2)
	r.modelR2.WithLabelValues(material, "test").Set(testR2)
}

func (r *Recorder) RecordListingCreated(material string) {
	r.listingsCreated.WithLabelValues(material).Inc()
}

func (r *Recorder) RecordContractLocked(material string, value float64) {
	r.contractsLocked.WithLabelValues(material).Inc()
	r.valueTraded.WithLabelValues(material).Add(value)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
