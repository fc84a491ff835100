package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/auth"
	"github.com/stayspot/stayspot/internal/db"
	"github.com/stayspot/stayspot/internal/email"
	"github.com/stayspot/stayspot/internal/errorz"
)

// CreateAccount creates an account in the database.
func (s *Store) CreateAccount(ctx context.Context, acct *auth.Account) error {
	if acct.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO accounts (id, email, password_hash, verified, created_at, updated_at) VALUES (`)
	q.Params(acct.ID, string(acct.Email), acct.PasswordHash.String(), acct.Verified, acct.CreatedAt, acct.UpdatedAt)
	q.Unsafe(`)`)

	query, params := q.Get()
	_, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

// FindAccountByID finds the account with the provided ID.
// It returns errorz.ErrNotFound if no account exists.
func (s *Store) FindAccountByID(ctx context.Context, id uuid.UUID) (auth.Account, error) {
	var q db.Query
	q.Unsafe(`SELECT id, email, password_hash, verified, created_at, updated_at FROM accounts WHERE id = `)
	q.Param(id)

	return s.selectAccount(ctx, &q)
}

// FindAccountByEmail finds the account with the provided email address.
// It returns errorz.ErrNotFound if no account exists.
func (s *Store) FindAccountByEmail(ctx context.Context, addr email.Address) (auth.Account, error) {
	var q db.Query
	q.Unsafe(`SELECT id, email, password_hash, verified, created_at, updated_at FROM accounts WHERE email = `)
	q.Param(string(addr))

	return s.selectAccount(ctx, &q)
}

func (s *Store) selectAccount(ctx context.Context, q *db.Query) (auth.Account, error) {
	query, params := q.Get()

	var acct auth.Account
	var rawEmail string
	row := s.db.QueryRowContext(ctx, query, params...)
	err := row.Scan(&acct.ID, &rawEmail, &acct.PasswordHash, &acct.Verified, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return auth.Account{}, errorz.MapDBErr(err)
	}

	acct.Email, err = email.ParseAddress(rawEmail)
	if err != nil {
		return auth.Account{}, err
	}

	return acct, nil
}

// UpdateAccount updates an account in the database.
// It returns errorz.ErrNotFound if no account is found.
func (s *Store) UpdateAccount(ctx context.Context, acct *auth.Account) error {
	var q db.Query
	q.Unsafe(`UPDATE accounts SET `)

	q.Unsafe(`email = `)
	q.Param(string(acct.Email))

	q.Unsafe(`, password_hash = `)
	q.Param(acct.PasswordHash.String())

	q.Unsafe(`, verified = `)
	q.Param(acct.Verified)

	q.Unsafe(`, updated_at = `)
	q.Param(acct.UpdatedAt)

	q.Unsafe(` WHERE id = `)
	q.Param(acct.ID)

	query, params := q.Get()
	result, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("account not found: %w", errorz.ErrNotFound)
	}

	return nil
}

// DeleteAccount deletes an account and its outstanding email tokens.
// It returns errorz.ErrNotFound if no account is found.
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	var q db.Query
	q.Unsafe(`DELETE FROM accounts WHERE id = `)
	q.Param(id)

	query, params := q.Get()
	result, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("account not found: %w", errorz.ErrNotFound)
	}

	return nil
}
