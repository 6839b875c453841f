package db

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// WithTx runs fn inside a single transaction. The transaction travels on the
// context so every repository call made by fn joins it. An error from fn
// rolls the transaction back; otherwise it commits.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TxFromContext returns the transaction started by WithTx, or nil when the
// context carries none.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// ScopeLocker combines WithTx and LockScope: fn runs inside one
// transaction that holds the advisory lock for the scope for its whole
// duration. Domain services depend on this to make a duplicate check and
// the write that follows it a single unit.
type ScopeLocker struct {
	pool *pgxpool.Pool
}

func NewScopeLocker(pool *pgxpool.Pool) *ScopeLocker {
	return &ScopeLocker{pool: pool}
}

func (l *ScopeLocker) WithinScope(ctx context.Context, scope string, fn func(ctx context.Context) error) error {
	return WithTx(ctx, l.pool, func(ctx context.Context) error {
		if err := LockScope(ctx, scope); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// LockScope takes a transaction-scoped advisory lock for the given scope key,
// serializing concurrent writers of the same scope across all instances. The
// lock releases at commit or rollback. Must be called inside WithTx.
func LockScope(ctx context.Context, scope string) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("lock scope %q: no transaction in context", scope)
	}

	h := fnv.New64a()
	if _, err := h.Write([]byte(scope)); err != nil {
		return fmt.Errorf("hash scope key: %w", err)
	}
	key := int64(h.Sum64())

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
		return fmt.Errorf("acquire scope lock: %w", err)
	}
	return nil
}
