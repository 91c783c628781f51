package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostgresLocker uses session-level advisory locks. The lock lives on one
// pooled connection that is pinned for the duration of fn, so fn runs on the
// rest of the pool; db.NewConfig keeps that pool at db.MinAdvisoryLockPool
// or larger.
type PostgresLocker struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPostgres(db *gorm.DB, log *zap.Logger) *PostgresLocker {
	return &PostgresLocker{db: db, log: log.Named("lock.postgres")}
}

func (l *PostgresLocker) Backend() string { return "postgres" }

func (l *PostgresLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock: acquire connection: %w", err)
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key,
	).Scan(&acquired); err != nil {
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer l.unlock(conn, key)

	return true, fn(ctx)
}

func (l *PostgresLocker) unlock(conn *sql.Conn, key string) {
	// Unlock even when the caller's context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var released bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key,
	).Scan(&released); err != nil || !released {
		l.log.Warn("advisory unlock failed", zap.String("key", key), zap.Bool("released", released), zap.Error(err))
		// A connection that still holds the lock must not go back to the pool.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}
