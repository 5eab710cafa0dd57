//go:build sqlite

package storage

import (
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

func NewSQLiteStore(path string) *SQLStore {
	return NewSQLStore("sqlite", path)
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func DefaultStoreKind() string {
	return "sqlite"
}
