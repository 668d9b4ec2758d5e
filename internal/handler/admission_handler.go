package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-intake-api/internal/models"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
	"github.com/noah-isme/batch-intake-api/pkg/response"
)

type admissionService interface {
	CreateFromBatch(ctx context.Context, batchID string, actor *models.JWTClaims) (*models.AdmissionBatchResult, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.Admission, error)
}

// AdmissionHandler turns processed batches into admission records.
type AdmissionHandler struct {
	service admissionService
}

// NewAdmissionHandler constructs the handler.
func NewAdmissionHandler(service admissionService) *AdmissionHandler {
	return &AdmissionHandler{service: service}
}

// CreateFromBatch godoc
// @Summary Create admissions from a processed batch
// @Tags Admissions
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 201 {object} response.Envelope
// @Router /batch-intakes/{id}/admissions [post]
func (h *AdmissionHandler) CreateFromBatch(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "admission service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.CreateFromBatch(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List admissions created from a batch
// @Tags Admissions
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "admission service not configured"))
		return
	}
	admissions, err := h.service.ListByBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admissions, nil)
}
