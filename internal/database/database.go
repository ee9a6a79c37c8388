// Package database centralises sqlx connection helpers and the SQL-backed
// defaults source.  The default driver is go-sql-driver/mysql, which also
// works with MariaDB and TiDB.
//
// Public entry points:
//
//	Open(dsn)                                 – quick helper with small pool sizes.
//	OpenWithOptions(dsn, maxOpen, maxIdle)    – fine-grained control.
//	DefaultsTree(ctx, db, table, scope)       – key/value rows → nested defaults.
//
// Both Open helpers Ping the database before returning so callers can fail
// fast.  Callers should Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Open returns a *sqlx.DB with defaults sized for a one-shot CLI: 4 max
// open, 2 idle, and a 30-minute connection lifetime.
func Open(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(dsn, 4, 2)
}

// OpenWithOptions lets callers tune maxOpen and maxIdle per pool.
func OpenWithOptions(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return db, nil
}
