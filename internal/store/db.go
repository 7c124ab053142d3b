package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool sizing for the board API. Every request holds at most one
// connection, and archive transactions are short.
const (
	poolMaxOpen     = 16
	poolMaxIdle     = 8
	poolMaxIdleTime = 10 * time.Minute
	poolMaxLifetime = time.Hour
	openPingTimeout = 5 * time.Second
)

// Open connects to Postgres and verifies the connection before
// returning. The handle is closed on a failed ping.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(poolMaxOpen)
	db.SetMaxIdleConns(poolMaxIdle)
	db.SetConnMaxIdleTime(poolMaxIdleTime)
	db.SetConnMaxLifetime(poolMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, openPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
