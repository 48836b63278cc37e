package models

import (
	"errors"
	"fmt"
)

var (
	ErrModelNotFound         = errors.New("model not found")
	ErrUnknownRegion         = errors.New("unknown region")
	ErrInvalidHorizon        = errors.New("invalid forecast horizon")
	ErrTrainingInProgress    = errors.New("training already in progress")
	ErrDataSourceUnavailable = errors.New("historical data source unavailable")
	ErrListingNotFound       = errors.New("listing not found")
	ErrListingUnavailable    = errors.New("listing is no longer available")
)

// ValidationError reports a missing or invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MissingField builds a ValidationError for an absent required field.
func MissingField(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "missing field"}
}
