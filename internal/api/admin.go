package api

import (
	"net/http"

	"checkout-engine/internal/models"

	"github.com/gin-gonic/gin"
)

type advanceRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

type restockRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type stockRequest struct {
	TotalQuantity     int  `json:"total_quantity" binding:"min=0"`
	LowStockThreshold *int `json:"low_stock_threshold"`
}

func (h *Handler) adminGetOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// orderAction runs a reason-carrying admin operation on the order in the path
func (h *Handler) orderAction(c *gin.Context, op func(c *gin.Context, orderID int64, reason string) (*models.Order, error)) {
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

	order, err := op(c, orderID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) adminCancelOrder(c *gin.Context) {
	h.orderAction(c, func(c *gin.Context, id int64, reason string) (*models.Order, error) {
		return h.orderService.AdminCancel(c.Request.Context(), id, reason)
	})
}

func (h *Handler) acceptReturn(c *gin.Context) {
	h.orderAction(c, func(c *gin.Context, id int64, reason string) (*models.Order, error) {
		return h.orderService.AcceptReturn(c.Request.Context(), id, reason)
	})
}

func (h *Handler) refundOrder(c *gin.Context) {
	h.orderAction(c, func(c *gin.Context, id int64, reason string) (*models.Order, error) {
		return h.orderService.Refund(c.Request.Context(), id, reason)
	})
}

// advanceOrder moves an order along fulfilment
func (h *Handler) advanceOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid order ID", nil)
		return
	}

	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.orderService.Advance(c.Request.Context(), orderID, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid order ID", nil)
		return
	}

	if err := h.orderService.DeleteOrder(c.Request.Context(), orderID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getInventory(c *gin.Context) {
	productID, ok := parseID(c, "productId")
	if !ok {
		h.badRequest(c, "Invalid product ID", nil)
		return
	}

	rec, err := h.ledger.GetInventory(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// stockProduct creates the inventory record of a product
func (h *Handler) stockProduct(c *gin.Context) {
	productID, ok := parseID(c, "productId")
	if !ok {
		h.badRequest(c, "Invalid product ID", nil)
		return
	}

	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	threshold := h.opts.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}

	rec, err := h.ledger.StockProduct(c.Request.Context(), productID, req.TotalQuantity, threshold)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) restockProduct(c *gin.Context) {
	productID, ok := parseID(c, "productId")
	if !ok {
		h.badRequest(c, "Invalid product ID", nil)
		return
	}

	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	rec, err := h.ledger.RestockProduct(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
