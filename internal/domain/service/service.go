package service

import (
	"context"

	"WasteFlow/internal/domain/models"
)

// HistorySource reads historical waste-generation records into a daily dataset.
type HistorySource interface {
	Name() string
	Load(ctx context.Context) (models.Dataset, error)
}

// Classifier labels a waste image. The forecasting and exchange code never calls it.
type Classifier interface {
	Classify(ctx context.Context, image []byte, filename string) (models.Classification, error)
}
