package database

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/sma-enrollment-sync/pkg/config"
)

// DSN renders the lib/pq connection string for cfg. connect_timeout is
// expressed in whole seconds, rounded up.
func DSN(cfg config.DatabaseConfig, connectTimeout time.Duration) string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
	if connectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(math.Ceil(connectTimeout.Seconds())))
	}
	return dsn
}

// NewPostgres returns a configured PostgreSQL client whose first ping is
// bounded by connectTimeout.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, connectTimeout time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg, connectTimeout))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
