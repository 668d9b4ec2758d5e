package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-intake-api/pkg/database"
)

// TxRunner executes callbacks inside a database transaction.
type TxRunner struct {
	db *sqlx.DB
}

// NewTxRunner constructs a TxRunner.
func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

// WithinTx runs fn with a transaction as executor, committing when fn succeeds.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	return database.Transact(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(tx)
	})
}
