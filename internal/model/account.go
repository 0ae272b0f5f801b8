// Package model holds the durable domain types and the store contracts the
// flows operate against.
package model

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail indicates the email is already bound to an account.
	// The durable store enforces uniqueness itself; this is the mapped form
	// of its constraint violation, never a raw driver error.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Account is the durable record of a registered user.
type Account struct {
	ID               int64
	Email            string
	Salt             string
	PasswordHash     string
	RecoveryCodeHash string // empty when recovery codes are not issued
	TwoFactorLogin   bool
}

// AccountUpdateSignal is one outbox row announcing an email change. It is
// written in the same transaction as the account mutation and deleted only
// after a subscriber handler completes without error.
type AccountUpdateSignal struct {
	ID        int64
	AccountID int64
	OldEmail  string
	NewEmail  string
}

// AccountStore is the durable account storage contract.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	// Create inserts the account, relying on the store's unique-email
	// constraint: a losing racer gets ErrDuplicateEmail.
	Create(ctx context.Context, account Account) (Account, error)
	// UpdatePassword replaces the credential material of an account.
	UpdatePassword(ctx context.Context, id int64, salt, passwordHash, recoveryCodeHash string) error
	// ChangeEmail updates the account email and enqueues the update signal
	// in one transaction. An email collision rolls the whole transaction
	// back and returns ErrDuplicateEmail.
	ChangeEmail(ctx context.Context, id int64, newEmail string) error
}
