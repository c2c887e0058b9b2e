package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
)

//go:embed postgres.sql
var postgresSchema string

// Postgres stores permits in a PostgreSQL table. The document column is JSONB.
type Postgres struct {
	sqlRepo
}

// NewPostgres wraps an open connection pool. Call Migrate before first use on
// a fresh database.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{sqlRepo{db: db, placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}}
}

// OpenPostgres connects with dsn, verifies the connection and creates the
// permits table when missing.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	pg := NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return pg, nil
}

// Migrate creates the permits table and its indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate permits table: %w", err)
	}
	return nil
}
