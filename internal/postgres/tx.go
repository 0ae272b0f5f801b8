package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// hookedTx decorates a pgx transaction with named after-commit hooks.
// Attaching the same key twice is a no-op, so within one transaction each
// domain-model type gets its dispatcher attached exactly once. Hooks run
// only after Commit returns success.
type hookedTx struct {
	pgx.Tx
	hooks map[string]func()
	order []string
}

func newHookedTx(tx pgx.Tx) *hookedTx {
	return &hookedTx{Tx: tx, hooks: make(map[string]func())}
}

func (t *hookedTx) afterCommit(key string, fn func()) {
	if _, ok := t.hooks[key]; ok {
		return
	}
	t.hooks[key] = fn
	t.order = append(t.order, key)
}

func (t *hookedTx) commit(ctx context.Context) error {
	if err := t.Tx.Commit(ctx); err != nil {
		return err
	}
	for _, key := range t.order {
		t.hooks[key]()
	}
	return nil
}
