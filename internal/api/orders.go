package api

import (
	"errors"
	"net/http"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/auth"
	"checkout-engine/internal/callback"
	"checkout-engine/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

// checkout places an order for the authenticated user
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	req.UserID = auth.GetUserID(c)
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.orderService.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// listOrders returns the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orderService.GetOrderForUser(c.Request.Context(), auth.GetUserID(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// getPayment returns the latest payment intent of one of the caller's orders
func (h *Handler) getPayment(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid order ID", nil)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.orderService.GetOrderForUser(ctx, auth.GetUserID(c), orderID); err != nil {
		h.respondError(c, err)
		return
	}

	intent, err := h.orderService.GetPayment(ctx, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

// cancelOrder cancels one of the caller's orders
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid order ID", nil)
		return
	}

	var req cancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.orderService.CustomerCancel(c.Request.Context(), auth.GetUserID(c), orderID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// paymentCallback receives a provider delivery. The provider is always
// answered with the generic ack unless the delivery could not be queued,
// in which case 503 invites a redelivery.
func (h *Handler) paymentCallback(kind callback.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody)
		body, err := c.GetRawData()
		if err != nil {
			h.logger.Warn("Unreadable payment callback body",
				zap.String("kind", string(kind)),
				zap.String("remote_addr", c.ClientIP()),
				zap.Error(err))
			c.JSON(http.StatusOK, callbackAck)
			return
		}

		err = h.callbacks.Accept(c.Request.Context(), kind, c.ClientIP(), body, c.GetHeader(h.opts.SignatureHeader))
		if errors.Is(err, apperr.ErrRetryable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ResultCode": 1, "ResultDesc": "Try again"})
			return
		}
		c.JSON(http.StatusOK, callbackAck)
	}
}

var callbackAck = gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

// maxCallbackBody bounds a provider delivery, far above any real payload
const maxCallbackBody = 64 << 10

// bindOptionalJSON binds a JSON body when one is present
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}
