package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/signalbus"
)

var _ signalbus.Store = (*SignalRepository)(nil)

// SignalRepository drains the account-update outbox.
type SignalRepository struct {
	db *Connection
}

// NewSignalRepository creates the repository.
func NewSignalRepository(db *Connection) *SignalRepository {
	return &SignalRepository{db: db}
}

// ProcessPending dispatches every pending signal row in id order. Each row
// gets its own transaction: the row is deleted first, then the handler runs,
// then the deletion commits — so a failing handler rolls the deletion back
// and the row survives for a later sweep. A row already taken by a
// concurrent dispatcher is skipped.
func (r *SignalRepository) ProcessPending(ctx context.Context, modelName string, fn signalbus.Handler) error {
	if modelName != signalbus.ModelAccountUpdate {
		return fmt.Errorf("unknown signal model %q", modelName)
	}

	rows, err := r.db.Query(ctx, `SELECT signal_id FROM account_update_signals ORDER BY signal_id`)
	if err != nil {
		return fmt.Errorf("failed to list pending signals: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return fmt.Errorf("failed to scan pending signals: %w", err)
	}

	for _, id := range ids {
		if err := r.processOne(ctx, id, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *SignalRepository) processOne(ctx context.Context, id int64, fn signalbus.Handler) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin dispatch transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var sig model.AccountUpdateSignal
	err = tx.QueryRow(ctx,
		`DELETE FROM account_update_signals WHERE signal_id = $1
		 RETURNING signal_id, account_id, old_email, new_email`, id,
	).Scan(&sig.ID, &sig.AccountID, &sig.OldEmail, &sig.NewEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent dispatcher already took this row.
			return nil
		}
		return fmt.Errorf("failed to take signal row: %w", err)
	}

	if err := fn(ctx, sig); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit signal dispatch: %w", err)
	}
	return nil
}
