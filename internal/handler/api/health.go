package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "WasteFlow/internal/domain/repository"
	"WasteFlow/internal/usecase"
	xhttp "WasteFlow/pkg/http"
)

// HealthHandler reports liveness plus model and archive status.
type HealthHandler struct {
	forecast *usecase.ForecastService
	archive  domrepo.SeriesArchive
}

func NewHealthHandler(forecast *usecase.ForecastService, archive domrepo.SeriesArchive) *HealthHandler {
	return &HealthHandler{forecast: forecast, archive: archive}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

type healthResponse struct {
	Status  string              `json:"status"`
	Models  usecase.ModelStatus `json:"models"`
	Archive string              `json:"archive,omitempty"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	res := healthResponse{Status: "ok", Models: h.forecast.Status()}

	if h.archive != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.archive.Health(ctx); err != nil {
			res.Archive = "unavailable"
		} else {
			res.Archive = "ok"
		}
	}
	return xhttp.DataResponse(c, http.StatusOK, res)
}
