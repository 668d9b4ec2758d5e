package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-intake-api/internal/models"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
)

type admissionServiceMock struct {
	result *models.AdmissionBatchResult
	err    error
	actor  *models.JWTClaims
}

func (m *admissionServiceMock) CreateFromBatch(ctx context.Context, batchID string, actor *models.JWTClaims) (*models.AdmissionBatchResult, error) {
	m.actor = actor
	return m.result, m.err
}

func (m *admissionServiceMock) ListByBatch(ctx context.Context, batchID string) ([]models.Admission, error) {
	return []models.Admission{{ID: "admission-1", ApplicationNumber: "ADM00001"}}, m.err
}

func TestAdmissionHandlerCreateFromBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{result: &models.AdmissionBatchResult{Message: "Created 1 admission record(s) from batch intake students."}}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/batch-intakes/batch-1/admissions", nil)
	c.Params = gin.Params{{Key: "id", Value: "batch-1"}}
	withAdmin(c)

	handler.CreateFromBatch(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin", mockSvc.actor.UserID)
	assert.Contains(t, w.Body.String(), "Created 1 admission record(s)")
}

func TestAdmissionHandlerSurfacesServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdmissionHandler(&admissionServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "All students already have admission records.")})

	c, w := newGinContext(http.MethodPost, "/batch-intakes/batch-1/admissions", nil)
	withAdmin(c)
	handler.CreateFromBatch(c)
	require.Equal(t, http.StatusConflict, w.Code)

	handler = NewAdmissionHandler(&admissionServiceMock{err: errors.New("db down")})
	c, w = newGinContext(http.MethodGet, "/batch-intakes/batch-1/admissions", nil)
	handler.List(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdmissionHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdmissionHandler(&admissionServiceMock{})
	c, w := newGinContext(http.MethodGet, "/batch-intakes/batch-1/admissions", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ADM00001")
}
