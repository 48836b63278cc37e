package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"WasteFlow/internal/domain/models"
	"WasteFlow/internal/usecase"
	xhttp "WasteFlow/pkg/http"
	xlogger "WasteFlow/pkg/logger"
)

// ForecastHandler serves the supply forecasting endpoints.
type ForecastHandler struct {
	logger *xlogger.Logger
	svc    *usecase.ForecastService
}

func NewForecastHandler(logger *xlogger.Logger, svc *usecase.ForecastService) *ForecastHandler {
	return &ForecastHandler{logger: logger, svc: svc}
}

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/forecast")
	g.GET("/supply", h.Supply)
	g.GET("/market", h.Market)
	g.GET("/materials", h.Materials)
	g.POST("/train", h.Train)
}

func (h *ForecastHandler) Supply(c echo.Context) error {
	req := &models.SupplyForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.ForecastSupply(c.Request().Context(), req.Material, req.Region, req.Days)
	if err != nil {
		h.logger.Warn("supply forecast failed",
			xlogger.String("material", req.Material),
			xlogger.String("region", req.Region),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastHandler) Market(c echo.Context) error {
	req := &models.MarketForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.GetMarketForecast(c.Request().Context(), req.Days)
	if err != nil {
		h.logger.Error("market forecast failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

type materialsResponse struct {
	Materials []string `json:"materials"`
	Regions   []string `json:"regions"`
}

func (h *ForecastHandler) Materials(c echo.Context) error {
	return xhttp.SuccessResponse(c, materialsResponse{
		Materials: h.svc.Materials(),
		Regions:   h.svc.Regions(),
	})
}

func (h *ForecastHandler) Train(c echo.Context) error {
	start := time.Now()
	summary, err := h.svc.Train(c.Request().Context())
	if err != nil {
		h.logger.Error("training failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	h.logger.Info("training finished via api",
		xlogger.Int("materials", len(summary.Reports)),
		xlogger.Duration("elapsed", time.Since(start)))
	return xhttp.DataResponse(c, http.StatusOK, summary)
}
