package api

import (
	"errors"

	"WasteFlow/internal/domain/models"
	xhttp "WasteFlow/pkg/http"
)

// mapError converts domain errors into HTTP application errors.
func mapError(err error) *xhttp.AppError {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return xhttp.BadRequestError("ERR_VALIDATION", verr.Field, verr.Message).
			WithParam("field", verr.Field).
			WithError(err)
	case errors.Is(err, models.ErrModelNotFound):
		return xhttp.NotFoundError("ERR_MODEL_NOT_FOUND", err.Error()).WithError(err)
	case errors.Is(err, models.ErrListingNotFound):
		return xhttp.NotFoundError("ERR_LISTING_NOT_FOUND", err.Error()).WithError(err)
	case errors.Is(err, models.ErrListingUnavailable):
		return xhttp.ConflictError("ERR_LISTING_UNAVAILABLE", err.Error()).WithError(err)
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.ConflictError("ERR_TRAINING_IN_PROGRESS", err.Error()).WithError(err)
	case errors.Is(err, models.ErrInvalidHorizon):
		return xhttp.BadRequestError("ERR_INVALID_HORIZON", "days", err.Error()).WithError(err)
	case errors.Is(err, models.ErrUnknownRegion):
		return xhttp.BadRequestError("ERR_UNKNOWN_REGION", "region", err.Error()).WithError(err)
	case errors.Is(err, models.ErrDataSourceUnavailable):
		return xhttp.ServiceUnavailableError("ERR_DATA_SOURCE_UNAVAILABLE", err.Error()).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
