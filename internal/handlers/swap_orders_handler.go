package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/engine"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/payments"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/validation"
)

// SwapService is the command surface of the swap order engine.
type SwapService interface {
	Create(ctx context.Context, actorID string, in engine.CreateInput) (*swaporder.SwapOrder, error)
	Get(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error)
	SubmitRequirements(ctx context.Context, actorID, orderID string, r swaporder.Requirements) (*swaporder.SwapOrder, error)
	ApproveRequirements(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error)
	PayFee(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, payments.Receipt, error)
	MarkDispatched(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error)
	ConfirmReceipt(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error)
	Cancel(ctx context.Context, actorID, orderID, reason string) (*swaporder.SwapOrder, error)
	ConfirmFeePayment(ctx context.Context, reference string) (*swaporder.SwapOrder, error)
}

// IdempotencyStore records Idempotency-Key outcomes.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, orderID, requestHash string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	Reclaim(ctx context.Context, key string) error
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the swap order handlers.
type HandlerConfig struct {
	Service        SwapService
	Idempotency    IdempotencyStore
	Logger         *slog.Logger
	SessionSecret  string
	SessionIssuer  string
	CallbackSecret string
}

type swapHandler struct {
	svc    SwapService
	idemp  IdempotencyStore
	logger *slog.Logger
}

// command is one state-changing request; it returns the HTTP status and response body.
type command func(ctx context.Context, caller string) (int, any, error)

// RegisterSwapOrderRoutes registers the party-facing swap order API behind session auth.
func RegisterSwapOrderRoutes(r gin.IRouter, cfg HandlerConfig) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	v := validation.New()
	h := &swapHandler{svc: cfg.Service, idemp: cfg.Idempotency, logger: cfg.Logger}

	g := r.Group("/swap-orders", SessionAuth(cfg.SessionSecret, cfg.SessionIssuer))

	g.POST("", func(c *gin.Context) {
		var req validation.CreateSwapOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		in := engine.CreateInput{
			RequesterID:        req.RequesterID,
			OwnerID:            req.OwnerID,
			RequesterListingID: req.RequesterListingID,
			OwnerListingID:     req.OwnerListingID,
		}
		if req.CommitmentFee != nil {
			fee := decimal.RequireFromString(strings.TrimSpace(*req.CommitmentFee)) // validated above
			in.CommitmentFee = &fee
		}
		h.run(c, "new", swaporder.ActionCreate, func(ctx context.Context, caller string) (int, any, error) {
			o, err := h.svc.Create(ctx, caller, in)
			if err != nil {
				return 0, nil, err
			}
			c.Header("Location", fmt.Sprintf("/swap-orders/%s", o.OrderID))
			return http.StatusCreated, gin.H{"order": o}, nil
		})
	})

	g.GET("/:id", func(c *gin.Context) {
		o, err := h.svc.Get(c.Request.Context(), CallerID(c), c.Param("id"))
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	})

	g.POST("/:id/requirements", func(c *gin.Context) {
		var req validation.SubmitRequirementsRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		r := swaporder.Requirements{
			MeetupLocation:  req.MeetupLocation,
			MeetupTime:      *req.MeetupTime,
			AdditionalNotes: req.AdditionalNotes,
		}
		h.run(c, c.Param("id"), swaporder.ActionSubmitRequirements, orderCommand(func(ctx context.Context, caller, id string) (*swaporder.SwapOrder, error) {
			return h.svc.SubmitRequirements(ctx, caller, id, r)
		}, c.Param("id")))
	})

	g.POST("/:id/approve-requirements", func(c *gin.Context) {
		h.run(c, c.Param("id"), swaporder.ActionApproveRequirements, orderCommand(h.svc.ApproveRequirements, c.Param("id")))
	})

	g.POST("/:id/pay-commitment-fee", func(c *gin.Context) {
		id := c.Param("id")
		h.run(c, id, swaporder.ActionPayFee, func(ctx context.Context, caller string) (int, any, error) {
			o, receipt, err := h.svc.PayFee(ctx, caller, id)
			if err != nil {
				return 0, nil, err
			}
			status := http.StatusOK
			if receipt.Status == payments.StatusPending {
				status = http.StatusAccepted
			}
			return status, gin.H{"order": o, "payment": receipt}, nil
		})
	})

	g.POST("/:id/dispatch", func(c *gin.Context) {
		h.run(c, c.Param("id"), swaporder.ActionDispatch, orderCommand(h.svc.MarkDispatched, c.Param("id")))
	})

	g.POST("/:id/confirm-delivery", func(c *gin.Context) {
		h.run(c, c.Param("id"), swaporder.ActionConfirmReceipt, orderCommand(h.svc.ConfirmReceipt, c.Param("id")))
	})

	g.POST("/:id/cancel", func(c *gin.Context) {
		var req validation.CancelRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		h.run(c, c.Param("id"), swaporder.ActionCancel, orderCommand(func(ctx context.Context, caller, id string) (*swaporder.SwapOrder, error) {
			return h.svc.Cancel(ctx, caller, id, req.Reason)
		}, c.Param("id")))
	})
}

func orderCommand(fn func(ctx context.Context, caller, orderID string) (*swaporder.SwapOrder, error), orderID string) command {
	return func(ctx context.Context, caller string) (int, any, error) {
		o, err := fn(ctx, caller, orderID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, gin.H{"order": o}, nil
	}
}

// run executes cmd, deduplicating on the optional Idempotency-Key header. Keys are scoped to
// order, action and caller. A DONE record replays the stored response, a FAILED one is retried,
// an IN_PROGRESS one is rejected.
func (h *swapHandler) run(c *gin.Context, orderID, action string, cmd command) {
	ctx := c.Request.Context()
	caller := CallerID(c)
	clientKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if clientKey == "" || h.idemp == nil {
		status, body, err := cmd(ctx, caller)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(status, body)
		return
	}

	key := idempotency.ScopedKey(orderID, action, caller, clientKey)
	hash := idempotency.HashRequest(validation.RawBody(c))

	created, err := h.idemp.CreateIfNotExists(ctx, key, orderID, hash)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("idempotency create: %w", err))
		return
	}
	if !created {
		if !h.resume(c, key, hash) {
			return
		}
	}

	status, body, err := cmd(ctx, caller)
	if err != nil {
		if mErr := h.idemp.MarkFailed(ctx, key, errorNote(err)); mErr != nil {
			h.logger.Warn("idempotency mark failed", "key", key, "error", mErr)
		}
		writeError(c, h.logger, err)
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("marshal response: %w", err))
		return
	}
	if err := h.idemp.MarkDone(ctx, key, string(payload), status); err != nil {
		// the command is committed; a retry with this key will re-run it as a no-op
		h.logger.Warn("idempotency mark done failed", "key", key, "error", err)
	}
	c.Data(status, "application/json; charset=utf-8", payload)
}

// resume inspects an existing record. It writes the response and returns false unless the
// command should run again.
func (h *swapHandler) resume(c *gin.Context, key, hash string) bool {
	ctx := c.Request.Context()
	rec, err := h.idemp.Get(ctx, key)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("idempotency get: %w", err))
		return false
	}
	if rec == nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request_in_progress", "message": "retry the request"})
		return false
	}
	if rec.RequestHash != hash {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "idempotency_key_reused",
			"message": "Idempotency-Key was already used with a different request body",
		})
		return false
	}

	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return false
	case idempotency.StatusFailed:
		err := h.idemp.Reclaim(ctx, key)
		if err == nil {
			return true
		}
		if !errors.Is(err, idempotency.ErrConditionFailed) {
			writeError(c, h.logger, fmt.Errorf("idempotency reclaim: %w", err))
			return false
		}
		fallthrough
	case idempotency.StatusInProgress:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request_in_progress", "message": "a request with this Idempotency-Key is still being processed"})
		return false
	default:
		writeError(c, h.logger, fmt.Errorf("unknown idempotency status %q", rec.Status))
		return false
	}
}

func errorNote(err error) string {
	if code := swaporder.CodeOf(err); code != "" {
		return code
	}
	return err.Error()
}
