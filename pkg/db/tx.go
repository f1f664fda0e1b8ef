package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

const defaultTxAttempts = 3

// ErrTxConflict is returned by a transaction body that lost an optimistic
// race, and by RunInTx once every attempt lost.
var ErrTxConflict = errors.New("tx_conflict")

// RunInTx runs fn in a transaction and restarts it from scratch when it
// fails with ErrTxConflict or a retryable database error. onRetry, when set,
// is called before each restart.
func RunInTx(ctx context.Context, gdb *gorm.DB, attempts int, fn func(tx *gorm.DB) error, onRetry func(attempt int, err error)) error {
	if attempts <= 0 {
		attempts = defaultTxAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = gdb.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTxConflict) && !IsRetryableTxErr(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt < attempts && onRetry != nil {
			onRetry(attempt, err)
		}
	}

	if errors.Is(err, ErrTxConflict) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, err)
}
