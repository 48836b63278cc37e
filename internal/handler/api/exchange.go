package api

import (
	"github.com/labstack/echo/v4"

	"WasteFlow/internal/domain/models"
	"WasteFlow/internal/service/ratelimit"
	"WasteFlow/internal/usecase"
	xhttp "WasteFlow/pkg/http"
	xlogger "WasteFlow/pkg/logger"
)

// ExchangeHandler serves listings, contracts and market analytics.
type ExchangeHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.ExchangeService
	limiter *ratelimit.Limiter
}

// NewExchangeHandler builds the handler; a nil limiter disables throttling.
func NewExchangeHandler(logger *xlogger.Logger, svc *usecase.ExchangeService, limiter *ratelimit.Limiter) *ExchangeHandler {
	return &ExchangeHandler{logger: logger, svc: svc, limiter: limiter}
}

func (h *ExchangeHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	limit := RateLimit(h.limiter)
	g.POST("/listings/create", h.CreateListing, limit)
	g.GET("/listings", h.Listings)
	g.POST("/contracts/lock", h.LockContract, limit)
	g.GET("/market/analytics", h.Analytics)
}

func (h *ExchangeHandler) CreateListing(c echo.Context) error {
	req := &models.CreateListingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	listing, err := h.svc.CreateListing(c.Request().Context(), req.Input())
	if err != nil {
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.CreatedResponse(c, listing)
}

func (h *ExchangeHandler) Listings(c echo.Context) error {
	req := &models.ListingsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows := h.svc.GetListings(models.ListingFilter{
		MaterialType: req.Material,
		Region:       req.Region,
		PurityGrade:  req.Grade,
	})
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ExchangeHandler) LockContract(c echo.Context) error {
	req := &models.LockContractRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	contract, err := h.svc.LockContract(c.Request().Context(), req.ListingID, req.ManufacturerName)
	if err != nil {
		h.logger.Debug("lock contract rejected",
			xlogger.String("listing_id", req.ListingID),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.CreatedResponse(c, contract)
}

func (h *ExchangeHandler) Analytics(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.GetMarketAnalytics())
}
