// Package store is the Postgres-backed task store. It is the single
// coordination substrate of the pipeline: the importer inserts chapter tasks,
// workers claim and complete them, and the watchdog resurrects stale leases.
// All cross-worker coordination happens through row locks and SKIP LOCKED;
// there is no worker-to-worker channel.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool sizing: 10 base connections plus 20 of burst headroom, recycled
// hourly so long-lived daemons survive server-side idle timeouts.
const (
	maxIdleConns    = 10
	maxOpenConns    = 30
	connMaxLifetime = time.Hour
)

type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection. The ping is retried
// briefly so daemons starting alongside the database don't flap.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
