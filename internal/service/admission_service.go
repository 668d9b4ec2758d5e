package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-intake-api/internal/models"
	"github.com/noah-isme/batch-intake-api/internal/repository"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
)

type admissionStore interface {
	FindActiveRegister(ctx context.Context, day time.Time) (*models.AdmissionRegister, error)
	FindLatestActiveRegister(ctx context.Context) (*models.AdmissionRegister, error)
	CreateRegister(ctx context.Context, register *models.AdmissionRegister) error
	ExistsForBatchEmail(ctx context.Context, batchID, email string) (bool, error)
	Create(ctx context.Context, admission *models.Admission) error
	ListByBatch(ctx context.Context, batchID string) ([]models.Admission, error)
}

type admissionBatchReader interface {
	FindByID(ctx context.Context, id string) (*models.BatchIntake, error)
}

// AdmissionService turns the students of a processed batch into admission records.
type AdmissionService struct {
	batches   admissionBatchReader
	students  batchStudentLister
	repo      admissionStore
	courses   activeCourseFinder
	sequences sequenceGenerator
	notifier  batchNotifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(batches admissionBatchReader, students batchStudentLister, repo admissionStore, courses activeCourseFinder, sequences sequenceGenerator, notifier batchNotifier, logger *zap.Logger) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{
		batches:   batches,
		students:  students,
		repo:      repo,
		courses:   courses,
		sequences: sequences,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateFromBatch files one admission per batch student that does not have one yet.
func (s *AdmissionService) CreateFromBatch(ctx context.Context, batchID string, actor *models.JWTClaims) (*models.AdmissionBatchResult, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, notFoundOrInternal(err, "batch intake not found", "failed to load batch intake")
	}
	if batch.State != models.BatchStateProcessed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "Batch intake must be processed before creating admissions.")
	}
	students, err := s.students.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "No students found in this batch intake.")
	}
	register, err := s.resolveRegister(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.AdmissionBatchResult{Register: *register, Created: []models.Admission{}}
	for _, student := range students {
		email := ""
		if student.Email != nil {
			email = *student.Email
		}
		exists, err := s.repo.ExistsForBatchEmail(ctx, batch.ID, email)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing admissions")
		}
		if exists {
			result.Skipped++
			continue
		}
		courseID, err := ResolveCourse(ctx, s.courses, batch.CourseID, register.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve admission course")
		}
		if courseID == "" {
			result.NoCourse++
			s.logger.Warn("no course for admission", zap.String("batch_id", batch.ID), zap.String("student_id", student.ID))
			continue
		}
		number, err := s.sequences.Next(ctx, repository.SequenceAdmissionNumber)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate application number")
		}
		gender := student.Gender
		if gender == "" {
			gender = "m"
		}
		phone := ""
		if student.Phone != nil {
			phone = *student.Phone
		}
		admission := models.Admission{
			ApplicationNumber:   fmt.Sprintf("ADM%05d", number),
			Name:                student.Name,
			FirstName:           student.FirstName,
			LastName:            student.LastName,
			Email:               email,
			Phone:               phone,
			Gender:              gender,
			CourseID:            courseID,
			SubBatchID:          batch.SubBatchID,
			RegisterID:          register.ID,
			SourceType:          models.AdmissionSourceBatchIntake,
			SourceBatchIntakeID: &batch.ID,
			IsImported:          true,
			State:               models.AdmissionStateSubmit,
			ApplicationDate:     s.now(),
		}
		if err := s.repo.Create(ctx, &admission); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admission")
		}
		result.Created = append(result.Created, admission)
	}

	result.Message = fmt.Sprintf("Created %d admission record(s) from batch intake students.", len(result.Created))
	if result.Skipped > 0 {
		result.Message += fmt.Sprintf(" %d student(s) already had admission records.", result.Skipped)
	}
	if s.notifier != nil {
		if _, err := s.notifier.Post(ctx, batch.ID, models.BatchMessageNotification, models.NotificationInfo, result.Message, actorID(actor)); err != nil {
			s.logger.Warn("failed to post admission summary", zap.String("batch_id", batch.ID), zap.Error(err))
		}
	}
	if len(result.Created) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "No new admissions created. All students already have admission records.")
	}
	s.logger.Info("admissions created from batch", zap.String("batch_id", batch.ID), zap.Int("created", len(result.Created)), zap.Int("skipped", result.Skipped))
	return result, nil
}

// ListByBatch returns admissions imported from a batch.
func (s *AdmissionService) ListByBatch(ctx context.Context, batchID string) ([]models.Admission, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		return nil, notFoundOrInternal(err, "batch intake not found", "failed to load batch intake")
	}
	admissions, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admissions")
	}
	return admissions, nil
}

// resolveRegister prefers an active register covering today, then the latest
// active one, and otherwise opens a default register for a year.
func (s *AdmissionService) resolveRegister(ctx context.Context) (*models.AdmissionRegister, error) {
	today := s.now()
	register, err := s.repo.FindActiveRegister(ctx, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find admission register")
	}
	if register != nil {
		return register, nil
	}
	register, err = s.repo.FindLatestActiveRegister(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find admission register")
	}
	if register != nil {
		return register, nil
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	register = &models.AdmissionRegister{
		Name:      fmt.Sprintf("Default Admission Register %d", today.Year()),
		StartDate: day,
		EndDate:   day.AddDate(1, 0, 0),
		Active:    true,
	}
	if err := s.repo.CreateRegister(ctx, register); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admission register")
	}
	return register, nil
}
