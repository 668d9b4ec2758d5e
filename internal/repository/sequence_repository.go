package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Sequence names backed by Postgres sequences.
const (
	SequenceBatchName       = "batch_intake_name_seq"
	SequenceBatchCode       = "batch_intake_code_seq"
	SequenceAdmissionNumber = "admission_number_seq"
)

var knownSequences = map[string]struct{}{
	SequenceBatchName:       {},
	SequenceBatchCode:       {},
	SequenceAdmissionNumber: {},
}

// SequenceRepository draws numbers from independent database sequences.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs a SequenceRepository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next returns the next value of the named sequence.
func (r *SequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	if _, ok := knownSequences[name]; !ok {
		return 0, fmt.Errorf("unknown sequence %q", name)
	}
	var value int64
	if err := r.db.GetContext(ctx, &value, "SELECT nextval($1::regclass)", name); err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return value, nil
}
