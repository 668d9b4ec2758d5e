package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-intake-api/internal/models"
	"github.com/noah-isme/batch-intake-api/pkg/importer"
)

func TestSplitName(t *testing.T) {
	cases := map[string][2]string{
		"Ahmed Hassan":        {"Ahmed", "Hassan"},
		"  Fatima Al-Zahra  ": {"Fatima", "Al-Zahra"},
		"Mohammed bin Salman": {"Mohammed", "bin Salman"},
		"Omar":                {"Omar", ""},
		"Sara\tAhmed":         {"Sara", "Ahmed"},
	}
	for in, want := range cases {
		first, last := splitName(in)
		assert.Equal(t, want[0], first, in)
		assert.Equal(t, want[1], last, in)
	}
}

func TestReconcileDedupesOnSubBatch(t *testing.T) {
	students := &memStudentStore{}
	existing := students.seed("Sara Ahmed", "sara@example.com", "", testCourseID)
	reconciler := NewIntakeReconciler(students, passthroughTx{}, "", nil)

	batch := &models.BatchIntake{ID: "batch-1", CourseID: strPtr(testCourseID), SubBatchID: strPtr("sub-1")}
	rows := []importer.Row{{"name": "Sara Ahmed", "email": "sara@example.com"}}

	summary, err := reconciler.Reconcile(context.Background(), batch, rows)
	require.NoError(t, err)
	// The existing detail has no sub-batch, so a new one is appended.
	assert.Equal(t, 1, summary.Updated)
	details := students.detailsFor(existing.ID)
	require.Len(t, details, 2)
	assert.Equal(t, "sub-1", *details[1].SubBatchID)

	summary, err = reconciler.Reconcile(context.Background(), batch, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Relinked)
	assert.Len(t, students.detailsFor(existing.ID), 2)
}

func TestReconcileWithoutEmailAlwaysCreates(t *testing.T) {
	students := &memStudentStore{}
	reconciler := NewIntakeReconciler(students, passthroughTx{}, "f", nil)
	batch := &models.BatchIntake{ID: "batch-1", CourseID: strPtr(testCourseID)}
	rows := []importer.Row{{"name": "Omar Ibrahim"}, {"name": "Omar Ibrahim"}}

	summary, err := reconciler.Reconcile(context.Background(), batch, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	require.Len(t, students.students, 2)
	assert.Equal(t, "f", students.students[0].Gender)
	assert.Nil(t, students.contacts[0].Email)
	assert.Equal(t, "batch-1", *students.contacts[0].BatchIntakeID)
}

func TestReconcileRequiresCourse(t *testing.T) {
	reconciler := NewIntakeReconciler(&memStudentStore{}, passthroughTx{}, "", nil)
	_, err := reconciler.Reconcile(context.Background(), &models.BatchIntake{ID: "batch-1"}, nil)
	assert.Error(t, err)
}
