// Package loader builds the daily training series from historical records,
// falling back to synthetic data when no usable history exists.
package loader

import (
	"context"
	"errors"

	"WasteFlow/internal/domain/models"
	domsvc "WasteFlow/internal/domain/service"
	applogger "WasteFlow/pkg/logger"
)

// Loader tries the primary history source and falls back to the generator.
type Loader struct {
	primary  domsvc.HistorySource
	fallback domsvc.HistorySource
	log      *applogger.Logger
}

// New builds a Loader. primary may be nil, in which case the fallback is always used.
func New(primary, fallback domsvc.HistorySource, l *applogger.Logger) *Loader {
	if l == nil {
		l = applogger.Nop()
	}
	return &Loader{primary: primary, fallback: fallback, log: l}
}

// Load never fails because of the primary source; only cancellation or a
// failing fallback produce an error.
func (l *Loader) Load(ctx context.Context) (models.Dataset, error) {
	if l.primary != nil {
		ds, err := l.primary.Load(ctx)
		if err == nil && len(ds.Points) > 0 {
			l.log.Info("history loaded",
				applogger.String("source", l.primary.Name()),
				applogger.Int("points", len(ds.Points)),
				applogger.Int("regions", len(ds.Regions)),
			)
			return ds, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Dataset{}, ctxErr
		}
		if err == nil {
			err = models.ErrDataSourceUnavailable
		}
		level := l.log.Warn
		if !errors.Is(err, models.ErrDataSourceUnavailable) {
			level = l.log.Error
		}
		level("history source unavailable, using synthetic data",
			applogger.String("source", l.primary.Name()),
			applogger.Error(err),
		)
	}

	ds, err := l.fallback.Load(ctx)
	if err != nil {
		return models.Dataset{}, err
	}
	l.log.Info("synthetic history generated", applogger.Int("points", len(ds.Points)))
	return ds, nil
}
