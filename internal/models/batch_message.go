package models

import "time"

// BatchMessageKind classifies activity feed entries.
type BatchMessageKind string

const (
	BatchMessageNotification BatchMessageKind = "notification"
	BatchMessageComment      BatchMessageKind = "comment"
)

// BatchMessage is one append-only entry of a batch's activity feed.
type BatchMessage struct {
	ID            string           `db:"id" json:"id"`
	BatchIntakeID string           `db:"batch_intake_id" json:"batch_intake_id"`
	Kind          BatchMessageKind `db:"kind" json:"kind"`
	Level         NotificationType `db:"level" json:"level"`
	Body          string           `db:"body" json:"body"`
	AuthorID      *string          `db:"author_id" json:"author_id,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}
