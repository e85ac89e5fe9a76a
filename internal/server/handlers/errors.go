package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/domain/models"
)

// respondError maps the fulfillment error taxonomy to HTTP responses.
// Everything in the taxonomy is a caller-resolvable condition; only
// CommitFailed and unknown errors surface as 500s.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrDuplicateBatchNumber):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_batch_number"})
	case errors.Is(err, models.ErrInvalidQuantity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_quantity"})
	case errors.Is(err, models.ErrEmptyPlan):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty_plan"})
	case errors.Is(err, models.ErrOverAllocation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "over_allocation"})
	case errors.Is(err, models.ErrNotPayable):
		c.JSON(http.StatusConflict, gin.H{"error": "not_payable"})
	case errors.Is(err, models.ErrStaleAllocation):
		c.JSON(http.StatusConflict, gin.H{"error": "stale_allocation"})
	case errors.Is(err, models.ErrIncompleteAllocation):
		c.JSON(http.StatusConflict, gin.H{"error": "incomplete_allocation"})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
