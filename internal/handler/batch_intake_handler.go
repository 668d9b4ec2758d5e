package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-intake-api/internal/dto"
	"github.com/noah-isme/batch-intake-api/internal/models"
	"github.com/noah-isme/batch-intake-api/internal/service"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
	"github.com/noah-isme/batch-intake-api/pkg/response"
)

// multipartOverhead allows for boundaries and part headers on top of the file cap.
const multipartOverhead = 64 << 10

type batchIntakeService interface {
	List(ctx context.Context, filter models.BatchIntakeFilter) ([]models.BatchIntake, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.BatchIntake, error)
	Create(ctx context.Context, req dto.CreateBatchIntakeRequest, actor *models.JWTClaims) (*models.BatchIntake, error)
	Update(ctx context.Context, id string, req dto.UpdateBatchIntakeRequest, actor *models.JWTClaims) (*models.BatchIntake, error)
	Upload(ctx context.Context, id string, upload dto.FileUpload, actor *models.JWTClaims) (*models.BatchIntake, error)
	Validate(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error)
	Process(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, *dto.ProcessSummary, error)
	Open(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error)
	Close(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error)
	Reopen(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error)
	Reset(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error)
	DownloadTemplate() (string, []byte, error)
	FileDownloadURL(ctx context.Context, id string) (*dto.FileLinkResponse, error)
	DownloadFile(ctx context.Context, id, token string) (*service.IntakeFileDownload, error)
	ListStudents(ctx context.Context, id string) ([]models.Student, error)
	ListMessages(ctx context.Context, id string, limit int) ([]models.BatchMessage, error)
	PostComment(ctx context.Context, id, body string, actor *models.JWTClaims) (*models.BatchMessage, error)
	Stats(ctx context.Context) (*models.BatchIntakeStats, error)
}

type lifecycleFunc func(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error)

// BatchIntakeHandler exposes the batch intake endpoints.
type BatchIntakeHandler struct {
	service   batchIntakeService
	maxUpload int64
}

// NewBatchIntakeHandler constructs the handler. maxUpload caps how much of an
// uploaded file is buffered; zero buffers everything.
func NewBatchIntakeHandler(service batchIntakeService, maxUpload int64) *BatchIntakeHandler {
	return &BatchIntakeHandler{service: service, maxUpload: maxUpload}
}

// List godoc
// @Summary List batch intakes
// @Tags BatchIntakes
// @Produce json
// @Param state query string false "Filter by state"
// @Param courseId query string false "Filter by course"
// @Param search query string false "Search by name, code or description"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field"
// @Param order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes [get]
func (h *BatchIntakeHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	filter := models.BatchIntakeFilter{
		State:     models.BatchIntakeState(strings.ToLower(strings.TrimSpace(c.Query("state")))),
		CourseID:  strings.TrimSpace(c.Query("courseId")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "limit", 20),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	batches, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	views := make([]models.BatchIntakeView, 0, len(batches))
	for i := range batches {
		views = append(views, batches[i].View())
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Get godoc
// @Summary Get batch intake detail
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id} [get]
func (h *BatchIntakeHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	batch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch.View(), nil)
}

// Create godoc
// @Summary Create batch intake
// @Tags BatchIntakes
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchIntakeRequest true "Batch intake payload"
// @Success 201 {object} response.Envelope
// @Router /batch-intakes [post]
func (h *BatchIntakeHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateBatchIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch intake payload"))
		return
	}
	batch, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch.View())
}

// Update godoc
// @Summary Update batch intake
// @Tags BatchIntakes
// @Accept json
// @Produce json
// @Param id path string true "Batch intake ID"
// @Param payload body dto.UpdateBatchIntakeRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id} [put]
func (h *BatchIntakeHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateBatchIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch intake payload"))
		return
	}
	batch, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch.View(), nil)
}

// Upload godoc
// @Summary Upload roster file
// @Tags BatchIntakes
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch intake ID"
// @Param file formData file true "Roster CSV"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/upload [post]
func (h *BatchIntakeHandler) Upload(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("File size exceeds maximum allowed size of %d bytes.", h.maxUpload)))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Please upload a file first."))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	var reader io.Reader = src
	if h.maxUpload > 0 {
		// One byte past the cap is enough for the size check to trip.
		reader = io.LimitReader(src, h.maxUpload+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
		return
	}
	upload := dto.FileUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Data:     data,
	}
	batch, err := h.service.Upload(c.Request.Context(), c.Param("id"), upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch.View(), nil)
}

// Validate godoc
// @Summary Validate the uploaded roster
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/validate [post]
func (h *BatchIntakeHandler) Validate(c *gin.Context) {
	h.runLifecycle(c, func(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
		return h.service.Validate(ctx, id, actor)
	})
}

// Process godoc
// @Summary Import the validated roster
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/process [post]
func (h *BatchIntakeHandler) Process(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	batch, summary, err := h.service.Process(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ProcessResponse{Batch: batch.View(), Summary: *summary}, nil)
}

// Open godoc
// @Summary Open a draft batch
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/open [post]
func (h *BatchIntakeHandler) Open(c *gin.Context) {
	h.runLifecycle(c, func(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
		return h.service.Open(ctx, id, actor)
	})
}

// Close godoc
// @Summary Close an open batch
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/close [post]
func (h *BatchIntakeHandler) Close(c *gin.Context) {
	h.runLifecycle(c, func(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
		return h.service.Close(ctx, id, actor)
	})
}

// Cancel godoc
// @Summary Cancel a batch
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/cancel [post]
func (h *BatchIntakeHandler) Cancel(c *gin.Context) {
	h.runLifecycle(c, func(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
		return h.service.Cancel(ctx, id, actor)
	})
}

// Reopen godoc
// @Summary Reopen a closed batch
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/reopen [post]
func (h *BatchIntakeHandler) Reopen(c *gin.Context) {
	h.runLifecycle(c, func(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
		return h.service.Reopen(ctx, id, actor)
	})
}

// Reset godoc
// @Summary Reset a batch back to draft
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/reset [post]
func (h *BatchIntakeHandler) Reset(c *gin.Context) {
	h.runLifecycle(c, func(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
		return h.service.Reset(ctx, id, actor)
	})
}

// Template godoc
// @Summary Download the sample roster
// @Tags BatchIntakes
// @Produce text/csv
// @Success 200 {file} binary
// @Router /batch-intakes/template [get]
func (h *BatchIntakeHandler) Template(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	filename, data, err := h.service.DownloadTemplate()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv", data)
}

// FileLink godoc
// @Summary Get a signed download link for the uploaded roster
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/file [get]
func (h *BatchIntakeHandler) FileLink(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	link, err := h.service.FileDownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadFile godoc
// @Summary Download the uploaded roster via signed token
// @Tags BatchIntakes
// @Produce octet-stream
// @Param id path string true "Batch intake ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /batch-intakes/{id}/file/download [get]
func (h *BatchIntakeHandler) DownloadFile(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.DownloadFile(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}

// Students godoc
// @Summary List students linked to a batch
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/students [get]
func (h *BatchIntakeHandler) Students(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	students, err := h.service.ListStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Messages godoc
// @Summary List the batch feed
// @Tags BatchIntakes
// @Produce json
// @Param id path string true "Batch intake ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/{id}/messages [get]
func (h *BatchIntakeHandler) Messages(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	messages, err := h.service.ListMessages(c.Request.Context(), c.Param("id"), parseQueryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

// Comment godoc
// @Summary Comment on a batch
// @Tags BatchIntakes
// @Accept json
// @Produce json
// @Param id path string true "Batch intake ID"
// @Param payload body dto.CommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /batch-intakes/{id}/messages [post]
func (h *BatchIntakeHandler) Comment(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "comment body is required"))
		return
	}
	msg, err := h.service.PostComment(c.Request.Context(), c.Param("id"), req.Body, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Stats godoc
// @Summary Batch intake dashboard figures
// @Tags BatchIntakes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /batch-intakes/stats [get]
func (h *BatchIntakeHandler) Stats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func (h *BatchIntakeHandler) runLifecycle(c *gin.Context, fn lifecycleFunc) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch intake service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	batch, err := fn(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch.View(), nil)
}
