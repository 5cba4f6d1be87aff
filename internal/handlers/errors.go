package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/engine"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

// statusFor maps a command error to its HTTP status.
func statusFor(err error) int {
	var e *swaporder.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case swaporder.KindValidation, swaporder.KindStateConflict:
			return http.StatusBadRequest
		case swaporder.KindAuthorization:
			return http.StatusForbidden
		case swaporder.KindNotFound:
			return http.StatusNotFound
		case swaporder.KindTerminal:
			return http.StatusConflict
		case swaporder.KindPayment:
			return http.StatusBadGateway
		}
	}
	if errors.Is(err, engine.ErrContention) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errorBody renders {"error": code, "message": msg}. Internal failures are not echoed to clients.
func errorBody(err error) gin.H {
	var e *swaporder.Error
	if errors.As(err, &e) {
		return gin.H{"error": e.Code, "message": e.Message}
	}
	if errors.Is(err, engine.ErrContention) {
		return gin.H{"error": "order_busy", "message": err.Error()}
	}
	return gin.H{"error": "internal_error", "message": "internal error"}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}
