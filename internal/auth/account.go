package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/email"
	"github.com/stayspot/stayspot/internal/krypto"
)

// Account contains the data for an account.
type Account struct {
	ID           uuid.UUID
	Email        email.Address
	PasswordHash krypto.Argon2Hash
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials are the email address and password combination used to
// sign up and authenticate.
type Credentials struct {
	Email    email.Address
	Password Password
}
