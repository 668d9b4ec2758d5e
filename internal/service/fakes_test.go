package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

type memStudentStore struct {
	mu        sync.Mutex
	contacts  []models.Contact
	students  []models.Student
	details   []models.StudentCourseDetail
	failEmail string
}

func (m *memStudentStore) FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.Email != nil && *s.Email == email {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memStudentStore) ListCourseDetails(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.StudentCourseDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StudentCourseDetail
	for _, d := range m.details {
		if d.StudentID == studentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStudentStore) CountByBatch(ctx context.Context, exec sqlx.ExtContext, batchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(batchID), nil
}

func (m *memStudentStore) countLocked(batchID string) int {
	count := 0
	for _, s := range m.students {
		if s.BatchIntakeID != nil && *s.BatchIntakeID == batchID {
			count++
		}
	}
	return count
}

func (m *memStudentStore) CreateContact(ctx context.Context, exec sqlx.ExtContext, contact *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEmail != "" && contact.Email != nil && *contact.Email == m.failEmail {
		return errors.New("contact rejected")
	}
	contact.ID = fmt.Sprintf("contact-%d", len(m.contacts)+1)
	m.contacts = append(m.contacts, *contact)
	return nil
}

func (m *memStudentStore) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	student.ID = fmt.Sprintf("student-%d", len(m.students)+1)
	m.students = append(m.students, *student)
	return nil
}

func (m *memStudentStore) AddCourseDetail(ctx context.Context, exec sqlx.ExtContext, detail *models.StudentCourseDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	detail.ID = fmt.Sprintf("detail-%d", len(m.details)+1)
	m.details = append(m.details, *detail)
	return nil
}

func (m *memStudentStore) LinkBatch(ctx context.Context, exec sqlx.ExtContext, studentID, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.students {
		if m.students[i].ID == studentID {
			id := batchID
			m.students[i].BatchIntakeID = &id
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStudentStore) ListByBatch(ctx context.Context, batchID string) ([]models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Student
	for _, s := range m.students {
		if s.BatchIntakeID != nil && *s.BatchIntakeID == batchID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStudentStore) seed(name, email, batchID string, courseIDs ...string) models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := email
	student := models.Student{
		ID:        fmt.Sprintf("student-%d", len(m.students)+1),
		Name:      name,
		FirstName: strings.Fields(name)[0],
		Gender:    "m",
		Email:     &e,
	}
	if batchID != "" {
		b := batchID
		student.BatchIntakeID = &b
	}
	m.students = append(m.students, student)
	for _, courseID := range courseIDs {
		m.details = append(m.details, models.StudentCourseDetail{
			ID:        fmt.Sprintf("detail-%d", len(m.details)+1),
			StudentID: student.ID,
			CourseID:  courseID,
			State:     models.CourseDetailRunning,
		})
	}
	return student
}

func (m *memStudentStore) detailsFor(studentID string) []models.StudentCourseDetail {
	details, _ := m.ListCourseDetails(context.Background(), nil, studentID)
	return details
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	return fn(nil)
}

type memBatchRepo struct {
	mu        sync.Mutex
	batches   map[string]models.BatchIntake
	students  *memStudentStore
	counts    []models.BatchStateCount
	updates   int
	updateErr error
	// failUpdates limits updateErr to the next n updates when positive.
	failUpdates int
	nextID      int
}

func newMemBatchRepo(students *memStudentStore) *memBatchRepo {
	return &memBatchRepo{batches: map[string]models.BatchIntake{}, students: students}
}

func (m *memBatchRepo) List(ctx context.Context, filter models.BatchIntakeFilter) ([]models.BatchIntake, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BatchIntake
	for _, b := range m.batches {
		if filter.State != "" && b.State != filter.State {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memBatchRepo) FindByID(ctx context.Context, id string) (*models.BatchIntake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if m.students != nil {
		b.CurrentEnrollment, _ = m.students.CountByBatch(ctx, nil, id)
	}
	return &b, nil
}

func (m *memBatchRepo) Create(ctx context.Context, batch *models.BatchIntake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batch.ID == "" {
		m.nextID++
		batch.ID = fmt.Sprintf("batch-%d", m.nextID)
	}
	batch.CreatedAt = time.Now().UTC()
	batch.UpdatedAt = batch.CreatedAt
	m.batches[batch.ID] = *batch
	return nil
}

func (m *memBatchRepo) Update(ctx context.Context, batch *models.BatchIntake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		if m.failUpdates == 0 {
			return m.updateErr
		}
		m.failUpdates--
		err := m.updateErr
		if m.failUpdates == 0 {
			m.updateErr = nil
		}
		return err
	}
	m.updates++
	batch.UpdatedAt = time.Now().UTC()
	m.batches[batch.ID] = *batch
	return nil
}

func (m *memBatchRepo) CountByState(ctx context.Context) ([]models.BatchStateCount, error) {
	return m.counts, nil
}

func (m *memBatchRepo) put(batch models.BatchIntake) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.ID] = batch
}

func (m *memBatchRepo) get(id string) models.BatchIntake {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[id]
}

type memSequences struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memSequences) Next(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]int64{}
	}
	m.values[name]++
	return m.values[name], nil
}

type memCourses struct {
	courses    map[string]models.Course
	subBatches map[string]models.SubBatch
}

func (m *memCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m *memCourses) FindSubBatch(ctx context.Context, id string) (*models.SubBatch, error) {
	s, ok := m.subBatches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memCourses) FirstActive(ctx context.Context) (*models.Course, error) {
	var first *models.Course
	for _, c := range m.courses {
		c := c
		if !c.Active {
			continue
		}
		if first == nil || c.ID < first.ID {
			first = &c
		}
	}
	return first, nil
}

type outcome struct {
	batchID string
	level   models.NotificationType
	body    string
}

type recordingNotifier struct {
	mu       sync.Mutex
	posts    []models.BatchMessage
	outcomes []outcome
	emailed  bool
}

func (r *recordingNotifier) Post(ctx context.Context, batchID string, kind models.BatchMessageKind, level models.NotificationType, body string, authorID *string) (*models.BatchMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := models.BatchMessage{ID: fmt.Sprintf("msg-%d", len(r.posts)+1), BatchIntakeID: batchID, Kind: kind, Level: level, Body: body, AuthorID: authorID}
	r.posts = append(r.posts, msg)
	return &msg, nil
}

func (r *recordingNotifier) List(ctx context.Context, batchID string, limit int) ([]models.BatchMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BatchMessage
	for i := len(r.posts) - 1; i >= 0; i-- {
		if r.posts[i].BatchIntakeID == batchID {
			out = append(out, r.posts[i])
		}
	}
	return out, nil
}

func (r *recordingNotifier) NotifyOutcome(ctx context.Context, batch *models.BatchIntake, level models.NotificationType, body string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome{batchID: batch.ID, level: level, body: body})
	return r.emailed
}

func (r *recordingNotifier) lastOutcome() outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return outcome{}
	}
	return r.outcomes[len(r.outcomes)-1]
}

func strPtr(s string) *string {
	return &s
}
