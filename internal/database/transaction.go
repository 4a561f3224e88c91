package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// txMaxAttempts bounds the busy-retry loop.
const txMaxAttempts = 3

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
//
// Writers that lose the race for the sqlite write lock are retried a bounded
// number of times, so fn MUST be idempotent: it may run more than once and
// must derive everything it writes from reads made inside the same
// transaction.
func WithTransaction(db *sql.DB, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := runInTransaction(db, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isBusy(err) {
			return err
		}

		// Brief linear backoff before retrying the whole callback
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", txMaxAttempts, lastErr)
}

func runInTransaction(db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// isBusy reports whether err is a sqlite write-lock conflict
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
