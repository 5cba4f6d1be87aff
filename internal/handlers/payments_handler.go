package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/payments"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/validation"
)

const maxCallbackBody = 64 << 10

// RegisterPaymentRoutes registers the payment collaborator's signed callback.
func RegisterPaymentRoutes(r gin.IRouter, cfg HandlerConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := validation.New()

	r.POST("/payments/callback", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "message": err.Error()})
			return
		}
		if !payments.Verify(cfg.CallbackSecret, body, c.GetHeader(payments.SignatureHeader)) {
			logger.Warn("payment callback signature rejected", "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature", "message": "callback signature mismatch"})
			return
		}

		var req validation.PaymentCallbackRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "message": err.Error()})
			return
		}
		if err := v.Struct(req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": err.Error()})
			return
		}

		o, err := cfg.Service.ConfirmFeePayment(c.Request.Context(), req.Reference)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	})
}
