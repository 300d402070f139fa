package storage

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/core/domain"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// txState is the unit of work carried through ctx while a transaction runs.
type txState struct {
	tx     *sql.Tx
	failed bool

	// shops mutated in this unit, restored from storage on rollback
	touched  []*domain.Shop
	inserted map[*domain.Shop]bool

	// cache mutations applied after the outermost commit
	afterCommit []func()
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

func (st *txState) touch(shop *domain.Shop) {
	for _, s := range st.touched {
		if s == shop {
			return
		}
	}
	st.touched = append(st.touched, shop)
}

func (st *txState) markInserted(shop *domain.Shop) {
	st.touch(shop)
	st.inserted[shop] = true
}

func (st *txState) onCommit(fn func()) {
	st.afterCommit = append(st.afterCommit, fn)
}

// conn returns the transaction bound to ctx, or the pool outside one.
func (r *Repository) conn(ctx context.Context) querier {
	if st := txFrom(ctx); st != nil {
		return st.tx
	}
	return r.db
}

func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if st := txFrom(ctx); st != nil {
		if err := fn(ctx); err != nil {
			st.failed = true
			return err
		}
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Storage("begin tx", err)
	}
	st := &txState{tx: tx, inserted: make(map[*domain.Shop]bool)}
	txCtx := context.WithValue(ctx, txKey{}, st)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		r.restore(ctx, st)
		return wrapTxError(err)
	}
	if st.failed {
		_ = tx.Rollback()
		r.restore(ctx, st)
		return domain.Storage("commit tx", errors.New("nested transaction failed"))
	}
	if err := tx.Commit(); err != nil {
		r.restore(ctx, st)
		return domain.Storage("commit tx", err)
	}

	for _, fn := range st.afterCommit {
		fn()
	}
	return nil
}

// restore reloads every shop touched by a rolled back unit so in-memory
// instances match storage again. Shops inserted in the unit lose their id.
func (r *Repository) restore(ctx context.Context, st *txState) {
	ctx = context.WithoutCancel(ctx)
	for _, shop := range st.touched {
		if st.inserted[shop] {
			shop.ID = 0
			shop.Owners = nil
			shop.Logs = nil
			continue
		}
		persisted, err := r.load(ctx, r.db, shop.ID)
		if err != nil {
			r.logger.Error("restore shop after rollback", zap.Int64("shop_id", shop.ID), zap.Error(err))
			continue
		}
		if persisted == nil {
			continue
		}
		shop.CopyFrom(persisted)
	}
}

func wrapTxError(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Storage("transaction", err)
}
