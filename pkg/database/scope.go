package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx operations repositories use. It is satisfied
// by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx, so the same repository code
// runs inside and outside transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope carries the connection (or transaction) a request's repository calls
// run against.
type Scope struct {
	Conn Querier
}

type scopeKey struct{}

// GetScope retrieves the database scope from context. Returns nil and false
// if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok
}

// SetScope stores a database scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// Runner hands out scoped contexts for repository calls. Services depend on
// this rather than on *DB so tests can substitute a pass-through.
type Runner interface {
	WithPool(ctx context.Context) context.Context
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Runner = (*DB)(nil)

// WithPool returns a context scoped to the shared pool. Read paths and
// single-statement writes use this.
func (db *DB) WithPool(ctx context.Context) context.Context {
	return SetScope(ctx, &Scope{Conn: db.Pool})
}

// InTx runs fn with a context scoped to a single transaction. Everything fn
// does through repositories commits or rolls back together; the link-store
// invariants depend on a mutation and its feedback entry sharing one
// transaction.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(SetScope(ctx, &Scope{Conn: tx})); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
