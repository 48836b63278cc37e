package api

import (
	"github.com/labstack/echo/v4"

	xhttp "WasteFlow/pkg/http"
)

// Router registers several handlers on one server. Nil entries are skipped.
type Router struct {
	handlers []xhttp.Handler
}

func NewRouter(handlers ...xhttp.Handler) *Router {
	r := &Router{}
	for _, h := range handlers {
		if h != nil {
			r.handlers = append(r.handlers, h)
		}
	}
	return r
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
}
