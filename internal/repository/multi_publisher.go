package repository

import (
	"context"
	"errors"

	"WasteFlow/internal/domain/models"
	domrepo "WasteFlow/internal/domain/repository"
)

// MultiPublisher fans each event out to every publisher. All publishers are
// attempted; their errors are joined.
type MultiPublisher struct {
	pubs []domrepo.EventPublisher
}

// NewMultiPublisher drops nil entries.
func NewMultiPublisher(pubs ...domrepo.EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range pubs {
		if p != nil {
			m.pubs = append(m.pubs, p)
		}
	}
	return m
}

func (m *MultiPublisher) Len() int { return len(m.pubs) }

func (m *MultiPublisher) Publish(ctx context.Context, ev models.ExchangeEvent) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
