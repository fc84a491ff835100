// Package db provides the SQLite backed implementation of the auth
// stores.
package db

import (
	"database/sql"
)

// Store is responsible for interacting with the database. It
// implements auth.Store.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}
