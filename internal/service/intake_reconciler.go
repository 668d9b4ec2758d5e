package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-intake-api/internal/dto"
	"github.com/noah-isme/batch-intake-api/internal/models"
	"github.com/noah-isme/batch-intake-api/pkg/importer"
)

var errCapacityReached = errors.New("batch capacity reached")

type intakeStudentStore interface {
	FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Student, error)
	ListCourseDetails(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.StudentCourseDetail, error)
	CountByBatch(ctx context.Context, exec sqlx.ExtContext, batchID string) (int, error)
	CreateContact(ctx context.Context, exec sqlx.ExtContext, contact *models.Contact) error
	Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	AddCourseDetail(ctx context.Context, exec sqlx.ExtContext, detail *models.StudentCourseDetail) error
	LinkBatch(ctx context.Context, exec sqlx.ExtContext, studentID, batchID string) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

type rowOutcome int

const (
	rowCreated rowOutcome = iota
	rowUpdated
	rowRelinked
)

// IntakeReconciler turns parsed roster rows into students enrolled on the
// batch's course. Each row commits on its own.
type IntakeReconciler struct {
	students      intakeStudentStore
	tx            txRunner
	logger        *zap.Logger
	defaultGender string
}

// NewIntakeReconciler constructs an IntakeReconciler.
func NewIntakeReconciler(students intakeStudentStore, tx txRunner, defaultGender string, logger *zap.Logger) *IntakeReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultGender == "" {
		defaultGender = "m"
	}
	return &IntakeReconciler{students: students, tx: tx, logger: logger, defaultGender: defaultGender}
}

// Reconcile applies every row against the student store. Row failures are
// collected in the summary; only a cancelled context aborts the run.
func (r *IntakeReconciler) Reconcile(ctx context.Context, batch *models.BatchIntake, rows []importer.Row) (dto.ProcessSummary, error) {
	var summary dto.ProcessSummary
	if batch.CourseID == nil || *batch.CourseID == "" {
		return summary, errors.New("batch has no course")
	}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		line := i + 1
		name := row.Get("name")
		if name == "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Row %d: Missing name", line))
			continue
		}
		var outcome rowOutcome
		err := r.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
			var rowErr error
			outcome, rowErr = r.reconcileRow(ctx, exec, batch, name, row.Get("email"), row.Get("phone"))
			return rowErr
		})
		if err != nil {
			r.logger.Debug("intake row failed", zap.String("batch_id", batch.ID), zap.Int("row", line), zap.Error(err))
			summary.Errors = append(summary.Errors, fmt.Sprintf("Row %d: %s", line, err.Error()))
			continue
		}
		switch outcome {
		case rowCreated:
			summary.Created++
		case rowUpdated:
			summary.Updated++
		case rowRelinked:
			summary.Relinked++
		}
	}
	return summary, nil
}

func (r *IntakeReconciler) reconcileRow(ctx context.Context, exec sqlx.ExtContext, batch *models.BatchIntake, name, email, phone string) (rowOutcome, error) {
	var existing *models.Student
	if email != "" {
		found, err := r.students.FindByEmail(ctx, exec, email)
		if err != nil {
			return 0, err
		}
		existing = found
	}

	if existing != nil {
		if existing.BatchIntakeID == nil || *existing.BatchIntakeID != batch.ID {
			if err := r.ensureCapacity(ctx, exec, batch); err != nil {
				return 0, err
			}
		}
		details, err := r.students.ListCourseDetails(ctx, exec, existing.ID)
		if err != nil {
			return 0, err
		}
		enrolled := false
		for _, detail := range details {
			if detail.Matches(*batch.CourseID, batch.SubBatchID) {
				enrolled = true
				break
			}
		}
		outcome := rowRelinked
		if !enrolled {
			if err := r.students.AddCourseDetail(ctx, exec, r.courseDetail(batch, existing.ID)); err != nil {
				return 0, err
			}
			outcome = rowUpdated
		}
		if err := r.students.LinkBatch(ctx, exec, existing.ID, batch.ID); err != nil {
			return 0, err
		}
		return outcome, nil
	}

	if err := r.ensureCapacity(ctx, exec, batch); err != nil {
		return 0, err
	}
	contact := &models.Contact{
		Name:          name,
		Email:         optionalString(email),
		Phone:         optionalString(phone),
		BatchIntakeID: &batch.ID,
	}
	if err := r.students.CreateContact(ctx, exec, contact); err != nil {
		return 0, err
	}
	first, last := splitName(name)
	student := &models.Student{
		ContactID:     contact.ID,
		Name:          name,
		FirstName:     first,
		LastName:      last,
		Gender:        r.defaultGender,
		Email:         contact.Email,
		Phone:         contact.Phone,
		BatchIntakeID: &batch.ID,
	}
	if err := r.students.Create(ctx, exec, student); err != nil {
		return 0, err
	}
	if err := r.students.AddCourseDetail(ctx, exec, r.courseDetail(batch, student.ID)); err != nil {
		return 0, err
	}
	return rowCreated, nil
}

func (r *IntakeReconciler) ensureCapacity(ctx context.Context, exec sqlx.ExtContext, batch *models.BatchIntake) error {
	if batch.MaxCapacity <= 0 {
		return nil
	}
	enrolled, err := r.students.CountByBatch(ctx, exec, batch.ID)
	if err != nil {
		return err
	}
	if enrolled >= batch.MaxCapacity {
		return errCapacityReached
	}
	return nil
}

func (r *IntakeReconciler) courseDetail(batch *models.BatchIntake, studentID string) *models.StudentCourseDetail {
	return &models.StudentCourseDetail{
		StudentID:      studentID,
		CourseID:       *batch.CourseID,
		SubBatchID:     batch.SubBatchID,
		AcademicYearID: batch.AcademicYearID,
		AcademicTermID: batch.AcademicTermID,
		State:          models.CourseDetailRunning,
	}
}

// splitName splits on the first whitespace; the remainder is the last name.
func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	idx := strings.IndexFunc(name, unicode.IsSpace)
	if idx < 0 {
		return name, ""
	}
	return name[:idx], strings.TrimSpace(name[idx:])
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
