package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/signalbus"
)

// uniqueViolation is the SQLSTATE for a unique-constraint failure.
const uniqueViolation = "23505"

var _ model.AccountStore = (*AccountRepository)(nil)

// Dispatcher is notified after a transaction carrying outbox rows commits.
type Dispatcher interface {
	Process(ctx context.Context, modelName string) error
}

// AccountRepository is the pgx implementation of model.AccountStore.
type AccountRepository struct {
	db         *Connection
	dispatcher Dispatcher
	log        *logger.Logger
}

// NewAccountRepository creates the repository. The dispatcher may be nil,
// in which case committed outbox rows wait for the periodic sweep.
func NewAccountRepository(db *Connection, dispatcher Dispatcher, log *logger.Logger) *AccountRepository {
	return &AccountRepository{db: db, dispatcher: dispatcher, log: log}
}

const accountColumns = "account_id, email, salt, password_hash, recovery_code_hash, two_factor_login"

func scanAccount(row pgx.Row) (model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID, &account.Email, &account.Salt,
		&account.PasswordHash, &account.RecoveryCodeHash, &account.TwoFactorLogin,
	)
	return account, err
}

// GetByEmail looks an account up by its exact, case-sensitive email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

// GetByID looks an account up by its numeric id.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by id: %w", err)
	}
	return account, nil
}

// Create inserts the account. A concurrent insert of the same email loses to
// the unique constraint and is reported as model.ErrDuplicateEmail.
func (r *AccountRepository) Create(ctx context.Context, account model.Account) (model.Account, error) {
	query := `INSERT INTO accounts (email, salt, password_hash, recovery_code_hash, two_factor_login)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING ` + accountColumns

	saved, err := scanAccount(r.db.QueryRow(ctx, query,
		account.Email, account.Salt, account.PasswordHash,
		account.RecoveryCodeHash, account.TwoFactorLogin,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, model.ErrDuplicateEmail
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	return saved, nil
}

// UpdatePassword replaces the credential material of an account.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, salt, passwordHash, recoveryCodeHash string) error {
	query := `UPDATE accounts SET salt = $2, password_hash = $3, recovery_code_hash = $4
			  WHERE account_id = $1`

	tag, err := r.db.Exec(ctx, query, id, salt, passwordHash, recoveryCodeHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ChangeEmail updates the email and inserts the account-update signal row in
// one transaction. A unique violation rolls the whole transaction back and
// returns model.ErrDuplicateEmail; after a successful commit the dispatcher
// is triggered once.
func (r *AccountRepository) ChangeEmail(ctx context.Context, id int64, newEmail string) error {
	rawTx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := newHookedTx(rawTx)
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var oldEmail string
	err = tx.QueryRow(ctx, `SELECT email FROM accounts WHERE account_id = $1 FOR UPDATE`, id).Scan(&oldEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("failed to lock account row: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET email = $2 WHERE account_id = $1`, id, newEmail); err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update email: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO account_update_signals (account_id, old_email, new_email) VALUES ($1, $2, $3)`,
		id, oldEmail, newEmail,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue update signal: %w", err)
	}

	if r.dispatcher != nil {
		tx.afterCommit(signalbus.ModelAccountUpdate, func() {
			if err := r.dispatcher.Process(ctx, signalbus.ModelAccountUpdate); err != nil {
				r.log.Error("signal dispatch after commit failed", "error", err)
			}
		})
	}

	if err := tx.commit(ctx); err != nil {
		return fmt.Errorf("failed to commit email change: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
