package repository

import (
	"context"

	"WasteFlow/internal/domain/models"
)

// RecordStore persists the full exchange state. Save must not corrupt
// previously committed state if the process dies mid-write.
type RecordStore interface {
	Load(ctx context.Context) (models.ExchangeState, error)
	Save(ctx context.Context, state models.ExchangeState) error
	Close() error
}

// EventPublisher delivers exchange events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.ExchangeEvent) error
	Close() error
}

// SeriesArchive stores training series for offline analysis.
type SeriesArchive interface {
	StoreBatch(ctx context.Context, points []models.TimeSeriesPoint) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordForecast(material, region string)
	RecordForecastFailure(material, region string)
	RecordTraining(material string, seconds, trainR2, testR2 float64)
	RecordListingCreated(material string)
	RecordContractLocked(material string, value float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
