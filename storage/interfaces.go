package storage

import (
	"context"
	"errors"

	"hut-availability/models"
)

// RecordSink persists the availability records of one hut
type RecordSink interface {
	SaveRecords(ctx context.Context, hutID int, records []models.AvailabilityRecord) error
	Close() error
}

// MultiSink fans records out to several sinks, stopping at the first failure
type MultiSink []RecordSink

func (m MultiSink) SaveRecords(ctx context.Context, hutID int, records []models.AvailabilityRecord) error {
	for _, s := range m {
		if err := s.SaveRecords(ctx, hutID, records); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
