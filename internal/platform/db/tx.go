package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, pool, TxOptions{}, fn)
}

// TxOptions tunes transactions started by WithTxOptions.
type TxOptions struct {
	// LockTimeout bounds how long statements wait for row or advisory locks. Zero keeps the server default.
	LockTimeout time.Duration
	// IsoLevel defaults to RepeatableRead. Transactions that serialize on an advisory
	// lock taken inside them need ReadCommitted so reads after the lock see prior commits.
	IsoLevel pgx.TxIsoLevel
}

func (o TxOptions) pgxOptions() pgx.TxOptions {
	iso := o.IsoLevel
	if iso == "" {
		iso = pgx.RepeatableRead
	}
	return pgx.TxOptions{IsoLevel: iso}
}

// WithTxOptions is WithTx with an optional isolation level and lock_timeout.
func WithTxOptions(ctx context.Context, pool *pgxpool.Pool, opts TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts.pgxOptions())
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if opts.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
