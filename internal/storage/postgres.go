package storage

import (
	_ "github.com/lib/pq"
)

// NewPostgresStore opens run storage on a PostgreSQL server, dsn being a
// lib/pq connection string or URL.
func NewPostgresStore(dsn string) *SQLStore {
	return NewSQLStore("postgres", dsn)
}
