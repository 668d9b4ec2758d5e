package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

// BatchMessageRepository stores the append-only activity feed of batches.
type BatchMessageRepository struct {
	db *sqlx.DB
}

// NewBatchMessageRepository constructs a BatchMessageRepository.
func NewBatchMessageRepository(db *sqlx.DB) *BatchMessageRepository {
	return &BatchMessageRepository{db: db}
}

// Create appends a message.
func (r *BatchMessageRepository) Create(ctx context.Context, msg *models.BatchMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO batch_intake_messages (id, batch_intake_id, kind, level, body, author_id, created_at)
        VALUES (:id, :batch_intake_id, :kind, :level, :body, :author_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create batch message: %w", err)
	}
	return nil
}

// ListByBatch returns the feed newest first.
func (r *BatchMessageRepository) ListByBatch(ctx context.Context, batchID string, limit int) ([]models.BatchMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id, batch_intake_id, kind, level, body, author_id, created_at
        FROM batch_intake_messages WHERE batch_intake_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var messages []models.BatchMessage
	if err := r.db.SelectContext(ctx, &messages, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch messages: %w", err)
	}
	return messages, nil
}
