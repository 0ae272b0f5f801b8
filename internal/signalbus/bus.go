// Package signalbus dispatches transactional-outbox rows to registered
// subscriber handlers after the enclosing domain transaction commits.
package signalbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/model"
)

// ModelAccountUpdate names the account-update outbox model.
const ModelAccountUpdate = "account_update_signal"

const (
	maxRetries  = 6
	baseBackoff = 100 * time.Millisecond
	maxBackoff  = 10 * time.Second
)

// Handler consumes one dispatched signal. Returning an error keeps the row
// in the outbox for a later sweep.
type Handler func(ctx context.Context, sig model.AccountUpdateSignal) error

// Store drains pending outbox rows. For each row it must, inside one
// transaction: delete the row, invoke fn, and commit — so a handler error
// rolls the deletion back and the row survives.
type Store interface {
	ProcessPending(ctx context.Context, modelName string, fn Handler) error
}

// ErrNoHandler indicates a dispatch was requested for a model nobody
// registered a handler for.
var ErrNoHandler = errors.New("no signal handler registered")

// Bus holds the handler registry and runs the dispatch loop with
// deadlock-safe retry. The registry lock is the only shared in-process
// mutable state in the system; it is coarse and short-held.
type Bus struct {
	store Store
	log   *logger.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates a Bus draining the given store.
func New(store Store, log *logger.Logger) *Bus {
	return &Bus{
		store:    store,
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// Register binds the handler for a signal model, replacing any previous one.
func (b *Bus) Register(modelName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[modelName] = h
}

func (b *Bus) handler(modelName string) (Handler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handlers[modelName]
	return h, ok
}

// Process drains all pending rows of the model. A serialization failure or
// deadlock rolls back and retries the whole attempt with exponential backoff
// (doubling from 100ms, capped at 10s, at most 6 retries); any other error
// aborts and surfaces.
func (b *Bus) Process(ctx context.Context, modelName string) error {
	h, ok := b.handler(modelName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, modelName)
	}

	backoff := retry.WithMaxRetries(maxRetries, retry.WithCappedDuration(maxBackoff, retry.NewExponential(baseBackoff)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := b.store.ProcessPending(ctx, modelName, h)
		if err != nil {
			if isRetryableConflict(err) {
				b.log.Warn("signal dispatch hit a concurrency conflict, retrying", "model", modelName, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// isRetryableConflict reports whether the error is a serialization failure
// (SQLSTATE 40001) or deadlock (40P01), the only store errors worth a retry.
func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
