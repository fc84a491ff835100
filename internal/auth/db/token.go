package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/auth"
	"github.com/stayspot/stayspot/internal/db"
	"github.com/stayspot/stayspot/internal/errorz"
)

// CreateToken creates an email token record in the database.
// The store intentionally has no uniqueness constraint on subject and
// purpose, the auth.Service decides when prior records are cleared.
func (s *Store) CreateToken(ctx context.Context, rec *auth.TokenRecord) error {
	if rec.SubjectID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO email_tokens (subject_id, purpose, secret_hash, issued_at, expires_at) VALUES (`)
	q.Params(rec.SubjectID, string(rec.Purpose), rec.SecretHash.String(), rec.IssuedAt, rec.ExpiresAt)
	q.Unsafe(`)`)

	query, params := q.Get()
	_, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

// FindToken returns the most recently issued token record for the
// subject and purpose. It returns errorz.ErrNotFound if there is none.
func (s *Store) FindToken(ctx context.Context, subjectID uuid.UUID, purpose auth.TokenPurpose) (auth.TokenRecord, error) {
	var q db.Query
	q.Unsafe(`SELECT subject_id, purpose, secret_hash, issued_at, expires_at FROM email_tokens WHERE subject_id = `)
	q.Param(subjectID)
	q.Unsafe(` AND purpose = `)
	q.Param(string(purpose))
	q.Unsafe(` ORDER BY issued_at DESC LIMIT 1`)

	query, params := q.Get()

	var rec auth.TokenRecord
	var rawPurpose string
	row := s.db.QueryRowContext(ctx, query, params...)
	err := row.Scan(&rec.SubjectID, &rawPurpose, &rec.SecretHash, &rec.IssuedAt, &rec.ExpiresAt)
	if err != nil {
		return auth.TokenRecord{}, errorz.MapDBErr(err)
	}

	rec.Purpose = auth.TokenPurpose(rawPurpose)

	return rec, nil
}

// DeleteToken deletes the token records for the subject and purpose.
// It returns errorz.ErrNotFound if there was nothing to delete.
func (s *Store) DeleteToken(ctx context.Context, subjectID uuid.UUID, purpose auth.TokenPurpose) error {
	rows, err := s.deleteTokens(ctx, subjectID, purpose)
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("email token not found: %w", errorz.ErrNotFound)
	}

	return nil
}

// DeleteTokens deletes the token records for the subject and purpose.
// Unlike DeleteToken it does not error when nothing was deleted.
func (s *Store) DeleteTokens(ctx context.Context, subjectID uuid.UUID, purpose auth.TokenPurpose) error {
	_, err := s.deleteTokens(ctx, subjectID, purpose)
	return err
}

func (s *Store) deleteTokens(ctx context.Context, subjectID uuid.UUID, purpose auth.TokenPurpose) (int64, error) {
	var q db.Query
	q.Unsafe(`DELETE FROM email_tokens WHERE subject_id = `)
	q.Param(subjectID)
	q.Unsafe(` AND purpose = `)
	q.Param(string(purpose))

	query, params := q.Get()
	result, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errorz.MapDBErr(err)
	}

	return rows, nil
}
