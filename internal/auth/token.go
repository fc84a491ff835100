package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/krypto"
)

// TokenPurpose represents the purpose of an email token.
type TokenPurpose string

const (
	// TokenPurposeVerifyEmail indicates a token is for verifying the
	// email address of a new account.
	TokenPurposeVerifyEmail TokenPurpose = "verify_email"
	// TokenPurposeResetPassword indicates a token is for resetting the
	// password of an account.
	TokenPurposeResetPassword TokenPurpose = "reset_password"
)

// emailTemplate is the name of the email template sent when a token
// with this purpose is issued.
func (p TokenPurpose) emailTemplate() string {
	switch p {
	case TokenPurposeVerifyEmail:
		return "verify-email"
	case TokenPurposeResetPassword:
		return "password-reset"
	}
	return ""
}

// TokenRecord is the persisted state of an outstanding email token.
//
// The existence of a record is what makes a token redeemable. Records
// are deleted when the token is redeemed, found expired, or superseded
// by a newer reset request. We only store a hash of the token to
// prevent someone with access to the database from using the tokens.
type TokenRecord struct {
	SubjectID  uuid.UUID
	Purpose    TokenPurpose
	SecretHash krypto.Argon2Hash
	IssuedAt   time.Time
	ExpiresAt  time.Time
}
