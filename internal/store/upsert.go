/**
 * @description
 * Generic idempotent persistence for time-series rows.
 * One Upsert routine serves every entity kind; each kind supplies a Resolver that finds
 * the stored row a submission should overwrite (by explicit id, then by natural key).
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/jackc/pgconn, github.com/jackc/pgx/v5/pgconn: Postgres error codes
 *
 * @notes
 * - No locking: two concurrent submissions for the same natural key race, and the loser's
 *   unique violation is turned into an update (last write wins).
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgconn"
	pgconnv5 "github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup has no matching row
	ErrNotFound = errors.New("record not found")
)

const (
	pgUniqueViolation      = "23505"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"

	maxRetries = 5
)

// Record is a row with a numeric surrogate key
type Record interface {
	RecordID() uint64
	SetRecordID(id uint64)
}

// Resolver looks up the id of the stored row that row should overwrite
type Resolver[T Record] func(tx *gorm.DB, row T) (id uint64, found bool, err error)

// FirstOf chains resolvers; the first one that finds a row wins
func FirstOf[T Record](resolvers ...Resolver[T]) Resolver[T] {
	return func(tx *gorm.DB, row T) (uint64, bool, error) {
		for _, resolve := range resolvers {
			id, found, err := resolve(tx, row)
			if err != nil || found {
				return id, found, err
			}
		}
		return 0, false, nil
	}
}

// ByID resolves a row by the explicit id it carries, if any
func ByID[T Record](tx *gorm.DB, row T) (uint64, bool, error) {
	id := row.RecordID()
	if id == 0 {
		return 0, false, nil
	}

	var count int64
	if err := tx.Model(row).Where("id = ?", id).Count(&count).Error; err != nil {
		return 0, false, err
	}
	return id, count > 0, nil
}

// Upsert updates the row found by resolve in place, or inserts row when none exists.
// The returned value is row itself, reloaded from storage.
func Upsert[T Record](ctx context.Context, db *gorm.DB, row T, resolve Resolver[T]) (T, error) {
	err := withRetry(ctx, func() error {
		return upsertOnce(db.WithContext(ctx), row, resolve)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return row, nil
}

func upsertOnce[T Record](tx *gorm.DB, row T, resolve Resolver[T]) error {
	id, found, err := resolve(tx, row)
	if err != nil {
		return fmt.Errorf("failed to resolve existing row: %w", err)
	}

	if !found {
		row.SetRecordID(0)
		err = tx.Create(row).Error
		if err == nil {
			return nil
		}
		if !isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("failed to insert row: %w", err)
		}

		// Lost an insert race on the natural key; overwrite the winner
		id, found, err = resolve(tx, row)
		if err != nil {
			return fmt.Errorf("failed to resolve existing row: %w", err)
		}
		if !found {
			return fmt.Errorf("unique violation without a resolvable row")
		}
	}

	row.SetRecordID(id)
	if err := tx.Model(row).Select("*").Omit("id", "created_at").Updates(row).Error; err != nil {
		return fmt.Errorf("failed to update row %d: %w", id, err)
	}
	if err := tx.Where("id = ?", id).First(row).Error; err != nil {
		return fmt.Errorf("failed to reload row %d: %w", id, err)
	}
	return nil
}

// Append always inserts row; used for append-only logs such as chart images
func Append[T Record](ctx context.Context, db *gorm.DB, row T) (T, error) {
	row.SetRecordID(0)
	err := withRetry(ctx, func() error {
		return db.WithContext(ctx).Create(row).Error
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to insert row: %w", err)
	}
	return row, nil
}

// withRetry re-runs fn on deadlock/serialization failures with jittered backoff
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !isPgCode(err, pgDeadlockDetected, pgSerializationFailure) {
			return err
		}

		backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

// isPgCode reports whether err carries one of the given SQLSTATE codes.
// Both pgconn generations are checked: the GORM driver surfaces pgx/v5 errors, while
// lib-level callers may still hand back v4 errors.
func isPgCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}

	var code string
	var v5Err *pgconnv5.PgError
	var v4Err *pgconn.PgError
	switch {
	case errors.As(err, &v5Err):
		code = v5Err.Code
	case errors.As(err, &v4Err):
		code = v4Err.Code
	case errors.Is(err, gorm.ErrDuplicatedKey):
		code = pgUniqueViolation
	default:
		return false
	}

	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
