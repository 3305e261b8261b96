package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
)

// ErrorHandler maps application error kinds onto HTTP statuses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "internal error"})
			return
		}

		status := http.StatusInternalServerError
		switch appErr.Kind {
		case apperrors.KindBadRequest:
			status = http.StatusBadRequest
		case apperrors.KindUnauthorized, apperrors.KindAuth:
			status = http.StatusUnauthorized
		case apperrors.KindNotFound:
			status = http.StatusNotFound
		case apperrors.KindConflict:
			status = http.StatusConflict
		case apperrors.KindTransient:
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "error", "message": appErr.Message, "kind": string(appErr.Kind)})
	}
}
