package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	domsvc "WasteFlow/internal/domain/service"
	xhttp "WasteFlow/pkg/http"
	xlogger "WasteFlow/pkg/logger"
)

const maxImageBytes = 10 << 20

// ClassifyHandler proxies image uploads to the vision classifier. A nil
// classifier answers 503.
type ClassifyHandler struct {
	logger     *xlogger.Logger
	classifier domsvc.Classifier
}

func NewClassifyHandler(logger *xlogger.Logger, classifier domsvc.Classifier) *ClassifyHandler {
	return &ClassifyHandler{logger: logger, classifier: classifier}
}

func (h *ClassifyHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/classify", h.Classify)
}

func (h *ClassifyHandler) Classify(c echo.Context) error {
	if h.classifier == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.ServiceUnavailableError("ERR_CLASSIFIER_DISABLED", "image classifier is not configured"))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_REQUIRED",
			Field:   "file",
			Message: "file is required",
		}})
	}
	if fh.Size > maxImageBytes {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_TOO_LARGE", "file", "image exceeds 10MB", http.StatusRequestEntityTooLarge))
	}

	f, err := fh.Open()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("cannot read upload").WithError(err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("cannot read upload").WithError(err))
	}

	res, err := h.classifier.Classify(c.Request().Context(), data, fh.Filename)
	if err != nil {
		h.logger.Error("classification failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_CLASSIFIER", "", "classification failed", http.StatusBadGateway).WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}
