package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store runs persistence work with a bounded timeout per try and retries
// TransientFailure with exponential backoff. Every other error is returned
// unchanged on the first occurrence.
type Store struct {
	DB *gorm.DB

	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration

	log *zap.Logger
}

func NewStore(db *gorm.DB, timeout time.Duration, maxTries uint, logger *zap.Logger) *Store {
	return &Store{
		DB:              db,
		Timeout:         timeout,
		MaxTries:        maxTries,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		log:             logger.Named("store"),
	}
}

// Atomically runs fn in a single transaction. Either everything fn wrote is
// committed or nothing is.
func (s *Store) Atomically(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return s.retry(ctx, op, func(tctx context.Context) error {
		return s.DB.WithContext(tctx).Transaction(fn)
	})
}

// Read runs fn outside a transaction with the same timeout and retry rules.
func (s *Store) Read(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	return s.retry(ctx, op, func(tctx context.Context) error {
		return fn(s.DB.WithContext(tctx))
	})
}

func (s *Store) retry(ctx context.Context, op string, try func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialInterval
	b.MaxInterval = s.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tctx, cancel := context.WithTimeout(ctx, s.Timeout)
		defer cancel()

		err := s.classify(ctx, try(tctx))
		if err == nil || IsTransient(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("🔁 transient failure, retrying",
				zap.String("op", op), zap.Duration("next", next), zap.Error(err))
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if err != nil && IsTransient(err) {
		s.log.Error("❌ giving up after transient failures", zap.String("op", op), zap.Error(err))
	}
	return err
}

// classify maps storage failures onto the error taxonomy. parent is the
// caller's context; a cancelled caller is never reported as transient.
func (s *Store) classify(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	var econ *Error
	if errors.As(err, &econ) {
		return err
	}
	if parent.Err() != nil {
		return fmt.Errorf("cancelled: %w", parent.Err())
	}
	if isTransientStorageError(err) {
		return &Error{Code: CodeTransientFailure, Message: "storage unavailable", Err: err}
	}
	return err
}

func isTransientStorageError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
