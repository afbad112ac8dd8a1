package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

type hooksKey struct{}

type commitHooks struct {
	fns []func()
}

// WithCommitHooks opens a scope for OnCommit registrations. The returned run
// function executes them in order and must be called only after a commit.
func WithCommitHooks(ctx context.Context) (context.Context, func()) {
	h := &commitHooks{}
	return context.WithValue(ctx, hooksKey{}, h), func() {
		for _, fn := range h.fns {
			fn()
		}
	}
}

// OnCommit defers fn until the surrounding non-SQL transaction commits.
// It reports false when ctx carries no hook scope; the caller applies the
// write directly in that case.
func OnCommit(ctx context.Context, fn func()) bool {
	h, ok := ctx.Value(hooksKey{}).(*commitHooks)
	if !ok {
		return false
	}
	h.fns = append(h.fns, fn)
	return true
}
