package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scholarbridge/internal/app"
	"scholarbridge/internal/model"
	"scholarbridge/internal/transport/http/response"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Reconciler interface {
	List(ctx context.Context, status string, limit int) ([]model.Reconciliation, error)
	Retry(ctx context.Context, recordID string) (*app.IntakeOutcome, error)
	RetryPending(ctx context.Context, limit int) (*app.RetrySummary, error)
}

type ReconcileHandler struct {
	reconciler Reconciler
}

func NewReconcileHandler(reconciler Reconciler) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

func (h *ReconcileHandler) List(c *gin.Context) {
	status := c.DefaultQuery("status", model.ReconciliationPending)
	if status != model.ReconciliationPending && status != model.ReconciliationResolved {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "status must be pending or resolved")
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	entries, err := h.reconciler.List(c.Request.Context(), status, limit)
	if err != nil {
		_ = c.Error(err)
		response.FromError(c, err, nil)
		return
	}
	response.OK(c, gin.H{"entries": entries})
}

func (h *ReconcileHandler) Retry(c *gin.Context) {
	outcome, err := h.reconciler.Retry(c.Request.Context(), c.Param("recordId"))
	if err != nil {
		_ = c.Error(err)
		response.FromError(c, err, outcome)
		return
	}
	response.OK(c, outcome)
}

func (h *ReconcileHandler) RetryPending(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	summary, err := h.reconciler.RetryPending(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		response.FromError(c, err, nil)
		return
	}
	response.OK(c, summary)
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxListLimit {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "limit must be between 1 and 500")
		return 0, false
	}
	return limit, true
}
