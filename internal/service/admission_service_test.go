package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-intake-api/internal/models"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
)

type memAdmissionStore struct {
	registers  []models.AdmissionRegister
	admissions []models.Admission
}

func (m *memAdmissionStore) FindActiveRegister(ctx context.Context, day time.Time) (*models.AdmissionRegister, error) {
	var best *models.AdmissionRegister
	for i := range m.registers {
		r := m.registers[i]
		if !r.Active || r.StartDate.After(day) || r.EndDate.Before(day) {
			continue
		}
		if best == nil || r.StartDate.After(best.StartDate) {
			best = &r
		}
	}
	return best, nil
}

func (m *memAdmissionStore) FindLatestActiveRegister(ctx context.Context) (*models.AdmissionRegister, error) {
	var best *models.AdmissionRegister
	for i := range m.registers {
		r := m.registers[i]
		if !r.Active {
			continue
		}
		if best == nil || r.StartDate.After(best.StartDate) {
			best = &r
		}
	}
	return best, nil
}

func (m *memAdmissionStore) CreateRegister(ctx context.Context, register *models.AdmissionRegister) error {
	register.ID = fmt.Sprintf("register-%d", len(m.registers)+1)
	m.registers = append(m.registers, *register)
	return nil
}

func (m *memAdmissionStore) ExistsForBatchEmail(ctx context.Context, batchID, email string) (bool, error) {
	for _, a := range m.admissions {
		if a.SourceBatchIntakeID != nil && *a.SourceBatchIntakeID == batchID && a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAdmissionStore) Create(ctx context.Context, admission *models.Admission) error {
	admission.ID = fmt.Sprintf("admission-%d", len(m.admissions)+1)
	m.admissions = append(m.admissions, *admission)
	return nil
}

func (m *memAdmissionStore) ListByBatch(ctx context.Context, batchID string) ([]models.Admission, error) {
	var out []models.Admission
	for _, a := range m.admissions {
		if a.SourceBatchIntakeID != nil && *a.SourceBatchIntakeID == batchID {
			out = append(out, a)
		}
	}
	return out, nil
}

type admissionFixture struct {
	svc      *AdmissionService
	batches  *memBatchRepo
	students *memStudentStore
	store    *memAdmissionStore
	notifier *recordingNotifier
	courses  *memCourses
}

func newAdmissionFixture(t *testing.T, state models.BatchIntakeState) *admissionFixture {
	t.Helper()
	students := &memStudentStore{}
	batches := newMemBatchRepo(students)
	batches.put(models.BatchIntake{ID: "batch-1", Name: "BATCH/00001", State: state, CourseID: strPtr(testCourseID), SubBatchID: strPtr("sub-1")})
	store := &memAdmissionStore{}
	notifier := &recordingNotifier{}
	courses := &memCourses{courses: map[string]models.Course{"course-9": {ID: "course-9", Active: true}}}
	svc := NewAdmissionService(batches, students, store, courses, &memSequences{}, notifier, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	return &admissionFixture{svc: svc, batches: batches, students: students, store: store, notifier: notifier, courses: courses}
}

func TestCreateFromBatchRequiresProcessedState(t *testing.T) {
	f := newAdmissionFixture(t, models.BatchStateValidated)
	_, err := f.svc.CreateFromBatch(context.Background(), "batch-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	assert.Contains(t, err.Error(), "Batch intake must be processed before creating admissions.")
}

func TestCreateFromBatchRequiresStudents(t *testing.T) {
	f := newAdmissionFixture(t, models.BatchStateProcessed)
	_, err := f.svc.CreateFromBatch(context.Background(), "batch-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No students found in this batch intake.")
}

func TestCreateFromBatchCreatesDefaultRegister(t *testing.T) {
	f := newAdmissionFixture(t, models.BatchStateProcessed)
	f.students.seed("Ahmed Hassan", "ahmed@example.com", "batch-1")
	f.students.seed("Fatima Al-Zahra", "fatima@example.com", "batch-1")

	result, err := f.svc.CreateFromBatch(context.Background(), "batch-1", &models.JWTClaims{UserID: "admin-1"})
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "Default Admission Register 2026", result.Register.Name)
	assert.Equal(t, time.Date(2027, 10, 16, 0, 0, 0, 0, time.UTC), result.Register.EndDate)
	assert.Equal(t, "Created 2 admission record(s) from batch intake students.", result.Message)

	admission := result.Created[0]
	assert.Equal(t, "ADM00001", admission.ApplicationNumber)
	assert.Equal(t, testCourseID, admission.CourseID)
	assert.Equal(t, "sub-1", *admission.SubBatchID)
	assert.Equal(t, models.AdmissionSourceBatchIntake, admission.SourceType)
	assert.True(t, admission.IsImported)
	assert.Equal(t, models.AdmissionStateSubmit, admission.State)
	assert.Equal(t, "m", admission.Gender)
	require.Len(t, f.notifier.posts, 1)
}

func TestCreateFromBatchPrefersRegisterCoveringToday(t *testing.T) {
	f := newAdmissionFixture(t, models.BatchStateProcessed)
	f.students.seed("Ahmed Hassan", "ahmed@example.com", "batch-1")
	f.store.registers = []models.AdmissionRegister{
		{ID: "future", Active: true, StartDate: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC)},
		{ID: "current", Active: true, StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	result, err := f.svc.CreateFromBatch(context.Background(), "batch-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "current", result.Register.ID)

	f.store.registers = f.store.registers[:1]
	f.store.admissions = nil
	result, err = f.svc.CreateFromBatch(context.Background(), "batch-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "future", result.Register.ID)
}

func TestCreateFromBatchSkipsExistingAndConflictsWhenNothingNew(t *testing.T) {
	f := newAdmissionFixture(t, models.BatchStateProcessed)
	f.students.seed("Ahmed Hassan", "ahmed@example.com", "batch-1")
	f.students.seed("Sara Ahmed", "sara@example.com", "batch-1")
	f.store.admissions = []models.Admission{{Email: "ahmed@example.com", SourceBatchIntakeID: strPtr("batch-1")}}

	result, err := f.svc.CreateFromBatch(context.Background(), "batch-1", nil)
	require.NoError(t, err)
	assert.Len(t, result.Created, 1)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "Created 1 admission record(s) from batch intake students. 1 student(s) already had admission records.", result.Message)

	_, err = f.svc.CreateFromBatch(context.Background(), "batch-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestCreateFromBatchFallsBackToRegistryCourse(t *testing.T) {
	f := newAdmissionFixture(t, models.BatchStateProcessed)
	batch := f.batches.get("batch-1")
	batch.CourseID = nil
	f.batches.put(batch)
	f.students.seed("Omar Ibrahim", "omar@example.com", "batch-1")

	result, err := f.svc.CreateFromBatch(context.Background(), "batch-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "course-9", result.Created[0].CourseID)

	admissions, err := f.svc.ListByBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Len(t, admissions, 1)
}

func TestResolveCourseOrder(t *testing.T) {
	registry := &memCourses{courses: map[string]models.Course{
		"b": {ID: "b", Active: true},
		"a": {ID: "a", Active: false},
	}}
	ctx := context.Background()

	got, err := ResolveCourse(ctx, registry, strPtr("explicit"), strPtr("register"))
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)

	got, err = ResolveCourse(ctx, registry, nil, strPtr("register"))
	require.NoError(t, err)
	assert.Equal(t, "register", got)

	got, err = ResolveCourse(ctx, registry, strPtr(" "), nil)
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	got, err = ResolveCourse(ctx, &memCourses{}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
