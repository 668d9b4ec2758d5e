package service

import (
	"context"
	"strings"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

type activeCourseFinder interface {
	FirstActive(ctx context.Context) (*models.Course, error)
}

// ResolveCourse picks the course for an enrollment. The first non-empty
// candidate wins; without one the first active course in the registry is used.
// An empty result means no course could be found.
func ResolveCourse(ctx context.Context, registry activeCourseFinder, candidates ...*string) (string, error) {
	for _, candidate := range candidates {
		if candidate != nil && strings.TrimSpace(*candidate) != "" {
			return strings.TrimSpace(*candidate), nil
		}
	}
	if registry == nil {
		return "", nil
	}
	course, err := registry.FirstActive(ctx)
	if err != nil {
		return "", err
	}
	if course == nil {
		return "", nil
	}
	return course.ID, nil
}
