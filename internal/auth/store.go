package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/email"
)

// TokenStore persists outstanding email tokens.
//
// The store does not enforce uniqueness per subject and purpose, the
// Service decides when prior tokens need to be cleared. All methods
// return errors from the underlying storage as-is, except for missing
// records which are reported as errorz.ErrNotFound.
type TokenStore interface {
	// CreateToken inserts a new token record.
	CreateToken(ctx context.Context, rec *TokenRecord) error
	// FindToken returns the most recently issued token record for the
	// subject and purpose. It returns errorz.ErrNotFound if there is none.
	FindToken(ctx context.Context, subjectID uuid.UUID, purpose TokenPurpose) (TokenRecord, error)
	// DeleteToken deletes all records for the subject and purpose. It
	// returns errorz.ErrNotFound if there was nothing to delete.
	DeleteToken(ctx context.Context, subjectID uuid.UUID, purpose TokenPurpose) error
	// DeleteTokens deletes all records for the subject and purpose.
	// Unlike DeleteToken it does not error when nothing was deleted.
	DeleteTokens(ctx context.Context, subjectID uuid.UUID, purpose TokenPurpose) error
}

// AccountStore persists accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *Account) error
	FindAccountByID(ctx context.Context, id uuid.UUID) (Account, error)
	FindAccountByEmail(ctx context.Context, addr email.Address) (Account, error)
	UpdateAccount(ctx context.Context, acct *Account) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// Store combines the two stores the Service depends on.
type Store interface {
	TokenStore
	AccountStore
}
