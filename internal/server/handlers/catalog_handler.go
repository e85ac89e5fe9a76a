package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/service/catalog"
)

// CatalogHandler exposes medication catalog operations over HTTP.
type CatalogHandler struct {
	svc    *catalog.Service
	logger *zap.Logger
}

// NewCatalogHandler constructs the catalog HTTP adapter.
func NewCatalogHandler(svc *catalog.Service, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{svc: svc, logger: logger}
}

type createMedicationRequest struct {
	Name             string `json:"name" binding:"required"`
	ReorderThreshold int    `json:"reorder_threshold"`
}

// CreateMedication registers a new catalog entry.
func (h *CatalogHandler) CreateMedication(c *gin.Context) {
	var req createMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid medication payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	med, err := h.svc.CreateMedication(c.Request.Context(), req.Name, req.ReorderThreshold)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, med)
}

// ListMedications returns the full catalog.
func (h *CatalogHandler) ListMedications(c *gin.Context) {
	meds, err := h.svc.ListMedications(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"medications": meds})
}

type receiveBatchRequest struct {
	BatchNumber string    `json:"batch_number" binding:"required"`
	Expiry      time.Time `json:"expiry" binding:"required"`
	Quantity    int       `json:"quantity"`
	UnitCost    string    `json:"unit_cost"`
}

// ReceiveBatch records a newly arrived batch of stock.
func (h *CatalogHandler) ReceiveBatch(c *gin.Context) {
	var req receiveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid batch payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	unitCost := decimal.Zero
	if req.UnitCost != "" {
		parsed, err := decimal.NewFromString(req.UnitCost)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit cost"})
			return
		}
		unitCost = parsed
	}

	batch, err := h.svc.Receive(c.Request.Context(), c.Param("id"), req.BatchNumber, req.Expiry, req.Quantity, unitCost)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, batch)
}

// ListBatches returns a medication's batches in the catalog's expiry
// ordering.
func (h *CatalogHandler) ListBatches(c *gin.Context) {
	batches, err := h.svc.ListBatches(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// StockLevel reports the on-hand position against the reorder threshold.
func (h *CatalogHandler) StockLevel(c *gin.Context) {
	level, err := h.svc.StockLevel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, level)
}
