package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
)

// observe counts responses per route and status code.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, statusOf(c, err))
		return err
	}
}

// statusOf predicts the status the error handler will write for err.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		if status := c.Response().Status; status != 0 {
			return status
		}
		return http.StatusOK
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return apperror.Classify(err).HTTPStatus
}
