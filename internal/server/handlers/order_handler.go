package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/domain/models"
	"github.com/clinicore/dispensary/internal/service/dispense"
)

// OrderHandler exposes the fulfillment order lifecycle over HTTP.
type OrderHandler struct {
	coord  *dispense.Coordinator
	logger *zap.Logger
}

// NewOrderHandler constructs the order HTTP adapter.
func NewOrderHandler(coord *dispense.Coordinator, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{coord: coord, logger: logger}
}

type createOrderRequest struct {
	MedicationID     string `json:"medication_id" binding:"required"`
	RequiredQuantity int    `json:"required_quantity"`
}

// CreateOrder opens a new fulfillment order.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid order payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.coord.CreateOrder(c.Request.Context(), req.MedicationID, req.RequiredQuantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder returns one fulfillment order.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.coord.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type linkInvoiceRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
}

// LinkInvoice attaches the billing reference to an order.
func (h *OrderHandler) LinkInvoice(c *gin.Context) {
	var req linkInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid invoice payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.coord.LinkInvoice(c.Request.Context(), c.Param("id"), req.InvoiceID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Propose returns an advisory allocation plan for the order's outstanding
// quantity. Nothing is reserved.
func (h *OrderHandler) Propose(c *gin.Context) {
	lines, err := h.coord.Propose(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	total := 0
	for _, line := range lines {
		total += line.Quantity
	}

	c.JSON(http.StatusOK, gin.H{"lines": lines, "total_allocated": total})
}

type commitRequest struct {
	Lines        []models.AllocationLine `json:"lines" binding:"required"`
	ActorID      string                  `json:"actor_id" binding:"required"`
	AllowPartial bool                    `json:"allow_partial"`
}

// Commit executes an allocation plan against the live ledger.
func (h *OrderHandler) Commit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid dispense payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.coord.Commit(c.Request.Context(), c.Param("id"), req.Lines, req.ActorID, req.AllowPartial)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// Cancel cancels an order from any non-terminal state.
func (h *OrderHandler) Cancel(c *gin.Context) {
	if err := h.coord.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListDispenses returns the order's committed dispense records.
func (h *OrderHandler) ListDispenses(c *gin.Context) {
	records, err := h.coord.ListDispenses(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispenses": records})
}
