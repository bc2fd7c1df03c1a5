package apperror

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HTTPErrorHandler returns an Echo error handler that renders errors as
// {"error": {"code": ..., "message": ...}}.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		errorObj := map[string]any{
			"code":    "internal_error",
			"message": "An internal error occurred",
		}

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				errorObj["message"] = msg
			}
			switch code {
			case http.StatusNotFound:
				errorObj["code"] = "not_found"
			case http.StatusBadRequest:
				errorObj["code"] = "bad_request"
			case http.StatusMethodNotAllowed:
				errorObj["code"] = "method_not_allowed"
			}
		} else {
			appErr := Classify(err)
			code = appErr.HTTPStatus
			errorObj["code"] = appErr.Code
			errorObj["message"] = appErr.Message
		}

		if code >= 500 {
			log.Error("request error",
				zap.Int("status", code),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]any{"error": errorObj})
	}
}
