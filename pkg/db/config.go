package db

import (
	"time"

	"github.com/smallbiznis/songgift/internal/config"
)

// MinAdvisoryLockPool is the smallest pool the postgres locker runs on. Each
// scheduler job pins one connection for its advisory lock while the locked
// work queries on another, and generation and delivery tick concurrently.
const MinAdvisoryLockPool = 4

// Config is the connection pool view of the application config.
type Config struct {
	Type            string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// RequestedMaxOpenConn is set when MaxOpenConn was raised to the floor.
	RequestedMaxOpenConn int
}

func NewConfig(cfg config.Config) Config {
	c := Config{
		Type:            cfg.DBType,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
	// Zero means unlimited in database/sql.
	if cfg.Lock.Backend == config.LockBackendPostgres && c.MaxOpenConn > 0 && c.MaxOpenConn < MinAdvisoryLockPool {
		c.RequestedMaxOpenConn = c.MaxOpenConn
		c.MaxOpenConn = MinAdvisoryLockPool
	}
	return c
}
