package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NotFoundJSON returns an error handler that keeps every error response,
// including router 404s and auth failures, in the ErrorResponse shape.
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			resp := ErrorResponse{Error: http.StatusText(he.Code), Code: he.Code}
			if msg := fmt.Sprint(he.Message); msg != "" && msg != resp.Error {
				resp.Details = msg
			}
			_ = c.JSON(he.Code, resp)
			return
		}

		c.Logger().Error(err)
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}
