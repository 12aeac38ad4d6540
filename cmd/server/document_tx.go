package main

import (
	"context"
	"database/sql"
	"time"

	documentservice "ekyc/internal/document/service"
	documentstore "ekyc/internal/document/store"
	dErrors "ekyc/pkg/domain-errors"
)

const defaultDocumentTxTimeout = 5 * time.Second

// documentPostgresTx runs the finalize step of a verification in one
// database transaction.
type documentPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newDocumentPostgresTx(db *sql.DB) *documentPostgresTx {
	return &documentPostgresTx{db: db}
}

func (t *documentPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store documentservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultDocumentTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if err := fn(ctx, documentstore.NewPostgresTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}
