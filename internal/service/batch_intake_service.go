package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-intake-api/internal/dto"
	"github.com/noah-isme/batch-intake-api/internal/models"
	"github.com/noah-isme/batch-intake-api/internal/repository"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
	"github.com/noah-isme/batch-intake-api/pkg/export"
	"github.com/noah-isme/batch-intake-api/pkg/importer"
)

const (
	stageUpload   = "upload"
	stageValidate = "validate"
	stageProcess  = "process"

	// TemplateFilename is the download name of the sample roster.
	TemplateFilename = "Batch_Intake_Template.csv"
)

var stageVerbs = map[string]string{
	stageUpload:   "uploading",
	stageValidate: "validating",
	stageProcess:  "processing",
}

var templateSheet = export.Sheet{
	Headers: []string{"name", "email", "phone"},
	Records: [][]string{
		{"Ahmed Hassan", "ahmed.hassan@example.com", "+966501234567"},
		{"Fatima Al-Zahra", "fatima.alzahra@example.com", "+966501234568"},
		{"Mohammed Ali", "mohammed.ali@example.com", "+966501234569"},
		{"Sara Ahmed", "sara.ahmed@example.com", "+966501234570"},
		{"Omar Ibrahim", "omar.ibrahim@example.com", "+966501234571"},
	},
}

type batchIntakeStore interface {
	List(ctx context.Context, filter models.BatchIntakeFilter) ([]models.BatchIntake, int, error)
	FindByID(ctx context.Context, id string) (*models.BatchIntake, error)
	Create(ctx context.Context, batch *models.BatchIntake) error
	Update(ctx context.Context, batch *models.BatchIntake) error
	CountByState(ctx context.Context) ([]models.BatchStateCount, error)
}

type batchStudentLister interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.Student, error)
}

type batchCourseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindSubBatch(ctx context.Context, id string) (*models.SubBatch, error)
}

type sequenceGenerator interface {
	Next(ctx context.Context, name string) (int64, error)
}

type intakeFileStorage interface {
	Save(relPath string, data []byte) (string, error)
	Read(relPath string) ([]byte, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

type intakeSignedURLSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string) (id, relPath string, expiresAt time.Time, err error)
}

type rosterReconciler interface {
	Reconcile(ctx context.Context, batch *models.BatchIntake, rows []importer.Row) (dto.ProcessSummary, error)
}

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

type batchNotifier interface {
	Post(ctx context.Context, batchID string, kind models.BatchMessageKind, level models.NotificationType, body string, authorID *string) (*models.BatchMessage, error)
	List(ctx context.Context, batchID string, limit int) ([]models.BatchMessage, error)
	NotifyOutcome(ctx context.Context, batch *models.BatchIntake, level models.NotificationType, body string) bool
}

// BatchIntakeServiceConfig holds limits and URL settings.
type BatchIntakeServiceConfig struct {
	MaxFileSize          int64
	ValidationErrorLimit int
	ProcessErrorLimit    int
	APIPrefix            string
	StatsTTL             time.Duration
}

// BatchIntakeDependencies bundles the collaborators of BatchIntakeService.
type BatchIntakeDependencies struct {
	Repo       batchIntakeStore
	Students   batchStudentLister
	Courses    batchCourseLookup
	Sequences  sequenceGenerator
	Storage    intakeFileStorage
	Signer     intakeSignedURLSigner
	Reconciler rosterReconciler
	Renderer   sheetRenderer
	Notifier   batchNotifier
	Cache      *CacheService
	Metrics    *MetricsService
}

// IntakeFileDownload bundles the stored roster for streaming.
type IntakeFileDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// BatchIntakeService drives the upload, validate and process pipeline and the
// lifecycle transitions of batch intakes.
type BatchIntakeService struct {
	repo       batchIntakeStore
	students   batchStudentLister
	courses    batchCourseLookup
	sequences  sequenceGenerator
	storage    intakeFileStorage
	signer     intakeSignedURLSigner
	reconciler rosterReconciler
	renderer   sheetRenderer
	notifier   batchNotifier
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        BatchIntakeServiceConfig
	now        func() time.Time
}

// NewBatchIntakeService constructs the service with defaults.
func NewBatchIntakeService(deps BatchIntakeDependencies, validate *validator.Validate, logger *zap.Logger, cfg BatchIntakeServiceConfig) *BatchIntakeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.ValidationErrorLimit <= 0 {
		cfg.ValidationErrorLimit = 10
	}
	if cfg.ProcessErrorLimit <= 0 {
		cfg.ProcessErrorLimit = 20
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if deps.Renderer == nil {
		deps.Renderer = export.NewCSVExporter()
	}
	return &BatchIntakeService{
		repo:       deps.Repo,
		students:   deps.Students,
		courses:    deps.Courses,
		sequences:  deps.Sequences,
		storage:    deps.Storage,
		signer:     deps.Signer,
		reconciler: deps.Reconciler,
		renderer:   deps.Renderer,
		notifier:   deps.Notifier,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns batches matching the filter with pagination metadata.
func (s *BatchIntakeService) List(ctx context.Context, filter models.BatchIntakeFilter) ([]models.BatchIntake, *models.Pagination, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid state filter")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch intakes")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return batches, pagination, nil
}

// Get returns a batch intake by id.
func (s *BatchIntakeService) Get(ctx context.Context, id string) (*models.BatchIntake, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "batch intake not found", "failed to load batch intake")
	}
	return batch, nil
}

// Create opens a new draft batch with sequence-generated name and code.
func (s *BatchIntakeService) Create(ctx context.Context, req dto.CreateBatchIntakeRequest, actor *models.JWTClaims) (*models.BatchIntake, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch intake payload")
	}
	batch := &models.BatchIntake{
		Description:              req.Description,
		StartDate:                req.StartDate,
		EndDate:                  req.EndDate,
		MaxCapacity:              req.MaxCapacity,
		CourseID:                 normalizeRef(req.CourseID),
		SubBatchID:               normalizeRef(req.SubBatchID),
		AcademicYearID:           normalizeRef(req.AcademicYearID),
		AcademicTermID:           normalizeRef(req.AcademicTermID),
		EmailNotificationEnabled: boolOrDefault(req.EmailNotificationEnabled, true),
		InAppNotificationEnabled: boolOrDefault(req.InAppNotificationEnabled, true),
		State:                    models.BatchStateDraft,
		NotificationType:         models.NotificationNone,
		CreatedBy:                actorID(actor),
	}
	if err := s.checkInvariants(ctx, batch); err != nil {
		return nil, err
	}
	nameSeq, err := s.sequences.Next(ctx, repository.SequenceBatchName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate batch name")
	}
	codeSeq, err := s.sequences.Next(ctx, repository.SequenceBatchCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate batch code")
	}
	batch.Name = fmt.Sprintf("BATCH/%05d", nameSeq)
	batch.Code = fmt.Sprintf("BI%05d", codeSeq)

	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch intake")
	}
	s.invalidateStats(ctx)
	s.post(ctx, batch.ID, models.NotificationInfo, fmt.Sprintf("Batch intake %s created.", batch.Name), actor)
	s.logger.Info("batch intake created", zap.String("batch_id", batch.ID), zap.String("batch_name", batch.Name))
	return batch, nil
}

// Update writes the editable fields of a batch and re-checks its invariants.
func (s *BatchIntakeService) Update(ctx context.Context, id string, req dto.UpdateBatchIntakeRequest, actor *models.JWTClaims) (*models.BatchIntake, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch intake payload")
	}
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Description != nil {
		batch.Description = req.Description
	}
	if req.StartDate != nil {
		batch.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		batch.EndDate = req.EndDate
	}
	if req.MaxCapacity != nil {
		batch.MaxCapacity = *req.MaxCapacity
	}
	if req.CourseID != nil {
		batch.CourseID = normalizeRef(req.CourseID)
	}
	if req.SubBatchID != nil {
		batch.SubBatchID = normalizeRef(req.SubBatchID)
	}
	if req.AcademicYearID != nil {
		batch.AcademicYearID = normalizeRef(req.AcademicYearID)
	}
	if req.AcademicTermID != nil {
		batch.AcademicTermID = normalizeRef(req.AcademicTermID)
	}
	if req.EmailNotificationEnabled != nil {
		batch.EmailNotificationEnabled = *req.EmailNotificationEnabled
	}
	if req.InAppNotificationEnabled != nil {
		batch.InAppNotificationEnabled = *req.InAppNotificationEnabled
	}
	if err := s.checkInvariants(ctx, batch); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch intake")
	}
	s.invalidateStats(ctx)
	return batch, nil
}

// Upload stores a roster file on the batch and counts its records.
func (s *BatchIntakeService) Upload(ctx context.Context, id string, upload dto.FileUpload, actor *models.JWTClaims) (*models.BatchIntake, error) {
	start := s.now()
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(upload.Data) == 0 && upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Please upload a file first.")
	}
	filename := strings.TrimSpace(filepath.Base(strings.ReplaceAll(upload.Filename, "\\", "/")))
	if filename == "" || filename == "." || filename == "/" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "File name is required.")
	}
	size := upload.Size
	if n := int64(len(upload.Data)); n > size {
		size = n
	}
	if size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("File size (%d bytes) exceeds maximum allowed size of %d bytes (10MB).", size, s.cfg.MaxFileSize))
	}
	fileType := importer.DetectFileType(filename)
	if fileType == importer.FileTypeUnknown {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, "Unsupported file type. Please upload CSV (.csv) or Excel (.xlsx, .xls) files only.")
	}

	// The replaced file is removed only once the new record is stored.
	previousPath := batch.FilePath
	if batch.State == models.BatchStateError {
		resetPayload(batch)
	}
	path, err := s.storage.Save(fmt.Sprintf("intakes/%s/%s/%s", batch.ID, uuid.NewString()[:8], filename), upload.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded file")
	}
	now := s.now()
	batch.Filename = filename
	batch.FilePath = path
	batch.FileSize = size
	batch.FileType = string(fileType)
	batch.UploadDate = &now

	rows, err := importer.Parse(upload.Data, fileType)
	if err == nil && len(rows) == 0 {
		err = errors.New("No records found in the uploaded file. Please check the file format and content.")
	}
	if err != nil {
		persisted, stageErr := s.recordStageFailure(ctx, batch, stageUpload, start, err)
		if persisted {
			s.removeFile(batch.ID, previousPath)
		} else {
			s.removeFile(batch.ID, path)
		}
		return nil, stageErr
	}

	batch.State = models.BatchStateUploaded
	batch.TotalRecords = len(rows)
	batch.ProcessedRecords = 0
	batch.ErrorRecords = 0
	batch.ValidationErrors = ""
	if err := s.repo.Update(ctx, batch); err != nil {
		s.removeFile(batch.ID, path)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save uploaded batch")
	}
	s.removeFile(batch.ID, previousPath)
	s.invalidateStats(ctx)
	s.metrics.ObserveStage(stageUpload, s.now().Sub(start), false)
	s.post(ctx, batch.ID, models.NotificationInfo,
		fmt.Sprintf("File \"%s\" (%d bytes) uploaded successfully. %d records found.", filename, size, len(rows)), actor)
	s.logger.Info("batch file uploaded", zap.String("batch_id", batch.ID), zap.String("filename", filename), zap.Int("records", len(rows)))
	return batch, nil
}

// Validate re-parses the stored file and checks every row for a name. Rows
// failing the check move the batch to error without failing the call.
func (s *BatchIntakeService) Validate(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
	start := s.now()
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.State != models.BatchStateUploaded {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "Please upload a file first (state must be uploaded).")
	}
	rows, err := s.loadRows(batch)
	if err != nil {
		return nil, s.failStage(ctx, batch, stageValidate, start, err)
	}

	var rowErrors []string
	for i, row := range rows {
		if row.Get("name") == "" {
			rowErrors = append(rowErrors, fmt.Sprintf("Row %d: Missing name field", i+1))
		}
	}
	now := s.now()
	batch.TotalRecords = len(rows)
	batch.ErrorRecords = len(rowErrors)
	batch.ValidationDate = &now
	level := models.NotificationSuccess
	if len(rowErrors) > 0 {
		batch.State = models.BatchStateError
		batch.ValidationErrors = strings.Join(truncate(rowErrors, s.cfg.ValidationErrorLimit), "\n")
		level = models.NotificationError
	} else {
		batch.State = models.BatchStateValidated
		batch.ValidationErrors = ""
	}
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save validation result")
	}
	s.invalidateStats(ctx)
	s.metrics.ObserveStage(stageValidate, s.now().Sub(start), len(rowErrors) > 0)
	s.post(ctx, batch.ID, level,
		fmt.Sprintf("File validation completed. %d records found, %d errors.", len(rows), len(rowErrors)), actor)
	return batch, nil
}

// Process reconciles the stored roster against students and enrolls them on
// the batch course. Row failures are reported, not fatal.
func (s *BatchIntakeService) Process(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, *dto.ProcessSummary, error) {
	start := s.now()
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if batch.State != models.BatchStateValidated {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "Please validate the file first (state must be validated).")
	}
	if batch.CourseID == nil || *batch.CourseID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "Please set a Course before processing the file.")
	}
	rows, err := s.loadRows(batch)
	if err != nil {
		return nil, nil, s.failStage(ctx, batch, stageProcess, start, err)
	}
	summary, err := s.reconciler.Reconcile(ctx, batch, rows)
	if err != nil {
		return nil, nil, s.failStage(ctx, batch, stageProcess, start, err)
	}

	// Rows are already committed; finish bookkeeping even if the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	now := s.now()
	batch.State = models.BatchStateProcessed
	batch.ProcessedRecords = summary.Created + summary.Updated
	batch.ErrorRecords = len(summary.Errors)
	batch.ProcessingDate = &now
	batch.ValidationErrors = ""
	level := models.NotificationSuccess
	if len(summary.Errors) > 0 {
		batch.ValidationErrors = strings.Join(truncate(summary.Errors, s.cfg.ProcessErrorLimit), "\n")
		level = models.NotificationWarning
	}
	message := fmt.Sprintf("Import completed. %d students created", summary.Created)
	if summary.Updated > 0 {
		message += fmt.Sprintf(", %d students updated", summary.Updated)
	}
	if len(summary.Errors) > 0 {
		message += fmt.Sprintf(", %d errors", len(summary.Errors))
	}
	batch.NotificationType = level
	emailed := s.notifyOutcome(persistCtx, batch, level, message)
	batch.NotificationSent = emailed || batch.InAppNotificationEnabled

	if err := s.repo.Update(persistCtx, batch); err != nil {
		saveErr := appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save processing result")
		return nil, nil, s.failStage(persistCtx, batch, stageProcess, start, saveErr)
	}
	if fresh, err := s.repo.FindByID(persistCtx, batch.ID); err == nil {
		batch.CurrentEnrollment = fresh.CurrentEnrollment
	}
	s.invalidateStats(persistCtx)
	s.metrics.RecordIntakeRows(summary)
	s.metrics.ObserveStage(stageProcess, s.now().Sub(start), false)
	s.logger.Info("batch processed",
		zap.String("batch_id", batch.ID),
		zap.String("batch_name", batch.Name),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("relinked", summary.Relinked),
		zap.Int("errors", len(summary.Errors)),
	)
	return batch, &summary, nil
}

// Open marks a draft batch live.
func (s *BatchIntakeService) Open(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
	return s.transition(ctx, id, actor, models.BatchStateOpen, "Only draft batches can be opened.", "Batch opened.", nil,
		models.BatchStateDraft)
}

// Close ends enrollment on an open batch.
func (s *BatchIntakeService) Close(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
	return s.transition(ctx, id, actor, models.BatchStateClosed, "Only open batches can be closed.", "Batch closed.", nil,
		models.BatchStateOpen)
}

// Cancel abandons any batch that is not closed.
func (s *BatchIntakeService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
	allowed := make([]models.BatchIntakeState, 0, len(models.BatchIntakeStates))
	for _, state := range models.BatchIntakeStates {
		if state != models.BatchStateClosed {
			allowed = append(allowed, state)
		}
	}
	return s.transition(ctx, id, actor, models.BatchStateCancelled, "Closed batches cannot be cancelled.", "Batch cancelled.", nil,
		allowed...)
}

// Reopen puts a closed or cancelled batch back to open.
func (s *BatchIntakeService) Reopen(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
	return s.transition(ctx, id, actor, models.BatchStateOpen, "Only closed or cancelled batches can be reopened.", "Batch reopened.", nil,
		models.BatchStateClosed, models.BatchStateCancelled)
}

// Reset returns a draft or failed batch to an empty draft.
func (s *BatchIntakeService) Reset(ctx context.Context, id string, actor *models.JWTClaims) (*models.BatchIntake, error) {
	var stale string
	batch, err := s.transition(ctx, id, actor, models.BatchStateDraft, "Can only reset draft or error batches.", "Batch reset to draft.",
		func(b *models.BatchIntake) {
			stale = b.FilePath
			resetPayload(b)
		},
		models.BatchStateDraft, models.BatchStateError)
	if err != nil {
		return nil, err
	}
	s.removeFile(batch.ID, stale)
	return batch, nil
}

// DownloadTemplate renders the sample roster CSV.
func (s *BatchIntakeService) DownloadTemplate() (string, []byte, error) {
	data, err := s.renderer.Render(templateSheet)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	return TemplateFilename, data, nil
}

// FileDownloadURL issues a signed link to the stored roster of a batch.
func (s *BatchIntakeService) FileDownloadURL(ctx context.Context, id string) (*dto.FileLinkResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.FilePath == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch intake has no uploaded file")
	}
	token, expiresAt, err := s.signer.Generate(batch.ID, batch.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.FileLinkResponse{
		URL:       fmt.Sprintf("%s/batch-intakes/%s/file/download?token=%s", base, batch.ID, token),
		ExpiresAt: expiresAt,
	}, nil
}

// DownloadFile validates token and opens the stored roster.
func (s *BatchIntakeService) DownloadFile(ctx context.Context, id, token string) (*IntakeFileDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	batchID, relPath, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if batchID != batch.ID || relPath != batch.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open batch file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read batch file metadata")
	}
	return &IntakeFileDownload{
		File:      file,
		Filename:  batch.Filename,
		MimeType:  mimeTypeFor(importer.FileType(batch.FileType)),
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

// ListStudents returns the students linked to a batch.
func (s *BatchIntakeService) ListStudents(ctx context.Context, id string) ([]models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	students, err := s.students.ListByBatch(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}
	return students, nil
}

// ListMessages returns the activity feed of a batch, newest first.
func (s *BatchIntakeService) ListMessages(ctx context.Context, id string, limit int) ([]models.BatchMessage, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.notifier.List(ctx, id, limit)
}

// PostComment adds a user comment to the activity feed.
func (s *BatchIntakeService) PostComment(ctx context.Context, id, body string, actor *models.JWTClaims) (*models.BatchMessage, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.notifier.Post(ctx, id, models.BatchMessageComment, models.NotificationInfo, body, actorID(actor))
}

// Stats aggregates batch counts for the dashboard, served from cache when possible.
func (s *BatchIntakeService) Stats(ctx context.Context) (*models.BatchIntakeStats, error) {
	if cached := s.cache.LoadStats(ctx); cached != nil {
		return cached, nil
	}
	counts, err := s.repo.CountByState(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute batch intake stats")
	}
	stats := &models.BatchIntakeStats{
		ByState:     make(map[models.BatchIntakeState]int, len(models.BatchIntakeStates)),
		GeneratedAt: s.now(),
	}
	for _, state := range models.BatchIntakeStates {
		stats.ByState[state] = 0
	}
	for _, row := range counts {
		stats.ByState[row.State] += row.Count
		stats.Total += row.Count
		stats.TotalRecords += row.TotalRecords
		stats.ProcessedRecords += row.ProcessedRecords
		stats.ErrorRecords += row.ErrorRecords
	}
	if stats.TotalRecords > 0 {
		stats.SuccessRate = float64(stats.ProcessedRecords) / float64(stats.TotalRecords) * 100
	}
	s.cache.StoreStats(ctx, stats, s.cfg.StatsTTL)
	return stats, nil
}

func (s *BatchIntakeService) transition(ctx context.Context, id string, actor *models.JWTClaims, target models.BatchIntakeState, wrongState, message string, mutate func(*models.BatchIntake), allowed ...models.BatchIntakeState) (*models.BatchIntake, error) {
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	permitted := false
	for _, state := range allowed {
		if batch.State == state {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, wrongState)
	}
	if mutate != nil {
		mutate(batch)
	}
	batch.State = target
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch intake state")
	}
	s.invalidateStats(ctx)
	s.post(ctx, batch.ID, models.NotificationInfo, message, actor)
	return batch, nil
}

// failStage persists the error state and returns the stage failure.
func (s *BatchIntakeService) failStage(ctx context.Context, batch *models.BatchIntake, stage string, start time.Time, cause error) error {
	_, err := s.recordStageFailure(ctx, batch, stage, start, cause)
	return err
}

// recordStageFailure moves the batch to error and reports whether that state
// reached the repository.
func (s *BatchIntakeService) recordStageFailure(ctx context.Context, batch *models.BatchIntake, stage string, start time.Time, cause error) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	reason := cause.Error()
	var appErr *appErrors.Error
	if errors.As(cause, &appErr) {
		reason = appErr.Message
	}
	message := fmt.Sprintf("Error %s file: %s", stageVerbs[stage], reason)

	batch.State = models.BatchStateError
	batch.ValidationErrors = message
	batch.NotificationType = models.NotificationError
	batch.NotificationSent = s.notifyOutcome(ctx, batch, models.NotificationError, message)
	persisted := true
	if err := s.repo.Update(ctx, batch); err != nil {
		persisted = false
		s.logger.Error("failed to persist stage failure", zap.String("batch_id", batch.ID), zap.String("stage", stage), zap.Error(err))
	}
	s.invalidateStats(ctx)
	s.metrics.ObserveStage(stage, s.now().Sub(start), true)
	s.logger.Warn("batch stage failed", zap.String("batch_id", batch.ID), zap.String("stage", stage), zap.Error(cause))

	template := appErrors.ErrStageFailed
	if errors.Is(cause, importer.ErrSpreadsheetNotSupported) {
		template = appErrors.ErrUnsupportedFormat
	}
	return persisted, appErrors.Wrap(cause, template.Code, template.Status, message)
}

func (s *BatchIntakeService) loadRows(batch *models.BatchIntake) ([]importer.Row, error) {
	if batch.FilePath == "" {
		return nil, errors.New("no file attached to batch")
	}
	data, err := s.storage.Read(batch.FilePath)
	if err != nil {
		return nil, err
	}
	return importer.Parse(data, importer.FileType(batch.FileType))
}

func (s *BatchIntakeService) removeFile(batchID, path string) {
	if path == "" {
		return
	}
	if err := s.storage.Delete(path); err != nil {
		s.logger.Warn("failed to remove stored file", zap.String("batch_id", batchID), zap.String("path", path), zap.Error(err))
	}
}

func resetPayload(batch *models.BatchIntake) {
	batch.ClearPayload()
	batch.UploadDate = nil
	batch.ValidationDate = nil
	batch.ProcessingDate = nil
	batch.NotificationType = models.NotificationNone
	batch.NotificationSent = false
}

func (s *BatchIntakeService) checkInvariants(ctx context.Context, batch *models.BatchIntake) error {
	if err := batch.CheckDates(); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := batch.CheckCapacity(); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if batch.SubBatchID != nil && batch.CourseID == nil {
		return appErrors.Clone(appErrors.ErrValidation, "A sub-batch requires a course.")
	}
	if s.courses == nil || batch.CourseID == nil {
		return nil
	}
	if _, err := s.courses.FindByID(ctx, *batch.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if batch.SubBatchID == nil {
		return nil
	}
	sub, err := s.courses.FindSubBatch(ctx, *batch.SubBatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "sub-batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sub-batch")
	}
	if sub.CourseID != *batch.CourseID {
		return appErrors.Clone(appErrors.ErrValidation, "Sub-batch must belong to the selected course.")
	}
	return nil
}

func (s *BatchIntakeService) post(ctx context.Context, batchID string, level models.NotificationType, body string, actor *models.JWTClaims) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Post(ctx, batchID, models.BatchMessageNotification, level, body, actorID(actor)); err != nil {
		s.logger.Warn("failed to post batch message", zap.String("batch_id", batchID), zap.Error(err))
	}
}

func (s *BatchIntakeService) notifyOutcome(ctx context.Context, batch *models.BatchIntake, level models.NotificationType, body string) bool {
	if s.notifier == nil {
		return false
	}
	return s.notifier.NotifyOutcome(ctx, batch, level, body)
}

func (s *BatchIntakeService) invalidateStats(ctx context.Context) {
	s.cache.InvalidateStats(ctx)
}

func notFoundOrInternal(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func mimeTypeFor(fileType importer.FileType) string {
	switch fileType {
	case importer.FileTypeCSV:
		return "text/csv"
	case importer.FileTypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

func truncate(items []string, limit int) []string {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func normalizeRef(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
